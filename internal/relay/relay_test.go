package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dc2kook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(mut func(o *config.Options)) *config.Options {
	o := config.DefaultOptions()
	if mut != nil {
		mut(o)
	}
	return o
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		source string
		opts   *config.Options
		want   string
		ok     bool
	}{
		{
			name:   "exact mapping",
			source: "100",
			opts: testOptions(func(o *config.Options) {
				o.ForwardChannels = config.Mapping{"100": "200"}
				o.DefaultSourceChannel = "100"
				o.DefaultDestinationChannel = "999"
			}),
			want: "200", ok: true,
		},
		{
			name:   "default source pairing",
			source: "300",
			opts: testOptions(func(o *config.Options) {
				o.DefaultSourceChannel = "300"
				o.DefaultDestinationChannel = "400"
			}),
			want: "400", ok: true,
		},
		{
			name:   "legacy single channel",
			source: "anything",
			opts: testOptions(func(o *config.Options) {
				o.DefaultDestinationChannel = "400"
			}),
			want: "400", ok: true,
		},
		{
			name:   "default source set but different channel",
			source: "301",
			opts: testOptions(func(o *config.Options) {
				o.DefaultSourceChannel = "300"
				o.DefaultDestinationChannel = "400"
			}),
			ok: false,
		},
		{
			name:   "default source without destination",
			source: "300",
			opts: testOptions(func(o *config.Options) {
				o.DefaultSourceChannel = "300"
			}),
			ok: false,
		},
		{
			name:   "nothing configured",
			source: "100",
			opts:   testOptions(nil),
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.source, tt.opts)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMappedKeysAlwaysWin(t *testing.T) {
	mapping := config.Mapping{}
	for i := 0; i < 50; i++ {
		mapping[fmt.Sprintf("src-%d", i)] = fmt.Sprintf("dst-%d", i)
	}

	for _, defaults := range [][2]string{{"", ""}, {"", "fallback"}, {"src-3", "fallback"}} {
		opts := testOptions(func(o *config.Options) {
			o.ForwardChannels = mapping
			o.DefaultSourceChannel = defaults[0]
			o.DefaultDestinationChannel = defaults[1]
		})
		for src, dst := range mapping {
			got, ok := Resolve(src, opts)
			require.True(t, ok)
			require.Equal(t, dst, got)
		}

		got, ok := Resolve("unmapped", opts)
		if defaults[0] == "" && defaults[1] != "" {
			assert.True(t, ok)
			assert.Equal(t, defaults[1], got)
		} else {
			assert.False(t, ok)
		}
	}
}

func TestShouldForward(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		opts *config.Options
		want bool
	}{
		{
			name: "own message rejected",
			ev:   Event{ChannelID: "100", FromSelf: true},
			opts: testOptions(func(o *config.Options) {
				o.ForwardAllChannels = true
			}),
			want: false,
		},
		{
			name: "own message allowed when included",
			ev:   Event{ChannelID: "100", FromSelf: true},
			opts: testOptions(func(o *config.Options) {
				o.ForwardAllChannels = true
				o.IncludeBotMessages = true
			}),
			want: true,
		},
		{
			name: "forward all ignores mapping",
			ev:   Event{ChannelID: "unmapped"},
			opts: testOptions(func(o *config.Options) {
				o.ForwardAllChannels = true
				o.ForwardChannels = config.Mapping{"100": "200"}
			}),
			want: true,
		},
		{
			name: "mapped channel",
			ev:   Event{ChannelID: "100"},
			opts: testOptions(func(o *config.Options) {
				o.ForwardChannels = config.Mapping{"100": "200"}
			}),
			want: true,
		},
		{
			name: "resolvable via legacy default",
			ev:   Event{ChannelID: "555"},
			opts: testOptions(func(o *config.Options) {
				o.DefaultDestinationChannel = "200"
			}),
			want: true,
		},
		{
			name: "unresolvable",
			ev:   Event{ChannelID: "555"},
			opts: testOptions(func(o *config.Options) {
				o.ForwardChannels = config.Mapping{"100": "200"}
			}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldForward(&tt.ev, tt.opts))
		})
	}
}

func TestShouldForwardAllChannelsProperty(t *testing.T) {
	mappings := []config.Mapping{
		{},
		{"1": "2"},
		{"a": "b", "c": "d", "e": "f"},
	}
	for _, m := range mappings {
		opts := testOptions(func(o *config.Options) {
			o.ForwardAllChannels = true
			o.ForwardChannels = m
		})
		for _, ch := range []string{"1", "a", "zzz", ""} {
			assert.True(t, ShouldForward(&Event{ChannelID: ch}, opts))
		}
	}
}

// panicTranslator 被调用即失败
type panicTranslator struct{ t *testing.T }

func (p panicTranslator) Translate(context.Context, string, string, string) (string, error) {
	p.t.Fatalf("translator must not be invoked")
	return "", nil
}

type stubTranslator struct {
	result string
	err    error
	calls  int
}

func (s *stubTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

type explodingTranslator struct{}

func (explodingTranslator) Translate(context.Context, string, string, string) (string, error) {
	panic("provider bug")
}

func TestTransformScenario(t *testing.T) {
	opts := testOptions(func(o *config.Options) {
		o.ForwardChannels = config.Mapping{"100": "200"}
		o.MessagePrefix = "[DC] "
	})
	ev := &Event{
		SenderName: "alice",
		ChannelID:  "100",
		Components: []Component{Text("hello world")},
	}

	out := Transform(context.Background(), ev, opts, panicTranslator{t})
	require.Len(t, out, 2)
	assert.Equal(t, Text("[DC] alice: "), out[0])
	assert.Equal(t, Text("hello world"), out[1])

	dest, ok := Resolve(ev.ChannelID, opts)
	assert.True(t, ok)
	assert.Equal(t, "200", dest)
}

func TestTransformComponents(t *testing.T) {
	opts := testOptions(nil)
	image := Component{Kind: KindImage, URL: "https://cdn/x.png", Filename: "x.png"}
	file := Component{Kind: KindFile, URL: "https://cdn/doc.pdf", Filename: "doc.pdf"}
	ev := &Event{
		SenderName: "bob",
		Components: []Component{
			{Kind: KindMention, UserID: "42"},
			Text(" look"),
			image,
			{Kind: KindMentionAll},
			file,
		},
	}
	before := append([]Component(nil), ev.Components...)

	out := Transform(context.Background(), ev, opts, nil)
	assert.Equal(t, []Component{
		Text("[Discord] bob: "),
		Text("@42"),
		Text(" look"),
		image,
		Text("@全体成员"),
		file,
	}, out)
	assert.Equal(t, before, ev.Components)
}

func TestTransformBelowThresholdNeverTranslates(t *testing.T) {
	opts := testOptions(func(o *config.Options) {
		o.EnableTranslation = true
		o.TranslateThreshold = 10
	})
	ev := &Event{SenderName: "a", Components: []Component{Text("   short   "), Text("你好世界")}}

	out := Transform(context.Background(), ev, opts, panicTranslator{t})
	assert.Equal(t, Text("   short   "), out[1])
	assert.Equal(t, Text("你好世界"), out[2])
}

func TestTransformTranslation(t *testing.T) {
	opts := testOptions(func(o *config.Options) {
		o.EnableTranslation = true
		o.TranslateThreshold = 5
	})
	ev := &Event{SenderName: "a", Components: []Component{Text("good morning")}}

	tr := &stubTranslator{result: "早上好"}
	out := Transform(context.Background(), ev, opts, tr)
	assert.Equal(t, Text("good morning\n[译文] 早上好"), out[1])
	assert.Equal(t, 1, tr.calls)

	same := &stubTranslator{result: "good morning"}
	out = Transform(context.Background(), ev, opts, same)
	assert.Equal(t, Text("good morning"), out[1])

	failing := &stubTranslator{err: errors.New("timeout")}
	out = Transform(context.Background(), ev, opts, failing)
	assert.Equal(t, Text("good morning"), out[1])

	out = Transform(context.Background(), ev, opts, explodingTranslator{})
	assert.Equal(t, Text("good morning"), out[1])
}

func TestTransformTranslationDisabled(t *testing.T) {
	opts := testOptions(func(o *config.Options) {
		o.EnableTranslation = false
		o.TranslateThreshold = 0
	})
	ev := &Event{SenderName: "a", Components: []Component{Text("good morning")}}

	out := Transform(context.Background(), ev, opts, panicTranslator{t})
	assert.Equal(t, Text("good morning"), out[1])
}
