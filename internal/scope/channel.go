package scope

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neilo40/scopewave/internal/mux"
	"github.com/neilo40/scopewave/internal/param"
	"github.com/neilo40/scopewave/internal/scpi"
)

// ChannelID names a channel: a numbered analog input or an auxiliary source
// such as the external trigger input. The zero value names nothing.
type ChannelID struct {
	index int
	aux   string
}

// Analog returns the id of analog input n (1-based).
func Analog(n int) ChannelID { return ChannelID{index: n} }

// Aux returns the id of a named auxiliary source.
func Aux(name string) ChannelID { return ChannelID{aux: strings.ToLower(name)} }

var (
	External = Aux("ext")
	Line     = Aux("line")
	WaveGen  = Aux("wgen")
)

func (c ChannelID) IsZero() bool   { return c.index == 0 && c.aux == "" }
func (c ChannelID) IsAnalog() bool { return c.index > 0 }

// Index is the analog input number, 0 for auxiliary sources.
func (c ChannelID) Index() int { return c.index }

func (c ChannelID) String() string {
	if c.index > 0 {
		return strconv.Itoa(c.index)
	}
	return c.aux
}

// Channels selects channels for a batch operation.
type Channels = mux.Selection[ChannelID]

// AllChannels selects every analog input.
func AllChannels() Channels { return mux.All[ChannelID]() }

// OneChannel selects a single channel; the batch result behaves as a scalar.
func OneChannel(ch ChannelID) Channels { return mux.One(ch) }

// ChannelList selects channels in the given order.
func ChannelList(chs ...ChannelID) Channels { return mux.List(chs...) }

func channelRegistries(n int, aux []string) (inputs, all *param.Enum[ChannelID]) {
	var entries []param.Entry[ChannelID]
	for i := 1; i <= n; i++ {
		entries = append(entries, param.Entry[ChannelID]{Symbol: Analog(i), Token: fmt.Sprintf("CHAN%d", i)})
	}
	inputs = param.New("input_channel", entries, param.Upper(), param.MatchPrefix())
	for _, a := range aux {
		entries = append(entries, param.Entry[ChannelID]{Symbol: Aux(a), Token: a})
	}
	all = param.New("channel", entries, param.Upper(), param.MatchPrefix())
	return inputs, all
}

// detectChannels counts analog inputs by probing the model's per-channel
// query until the instrument stops accepting it.
func detectChannels(ctx context.Context, in *scpi.Instrument, m Model) (int, error) {
	n := 1
	for n < m.MaxChannels {
		ok, err := in.CommandValid(ctx, fmt.Sprintf(m.Commands.ChannelProbe, n+1), 500*time.Millisecond)
		if err != nil {
			return 0, fmt.Errorf("detecting channels: %w", err)
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}
