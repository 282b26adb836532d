package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/identity"
)

type fakeLookup struct {
	channels map[string]string // handle -> channel id
	live     map[string]string // channel id -> video id
	err      error
	calls    []string
}

func (f *fakeLookup) ChannelIDForHandle(ctx context.Context, handle string) (string, error) {
	f.calls = append(f.calls, "channels:"+handle)
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.channels[handle]; ok {
		return id, nil
	}
	return "", errors.New("not found")
}

func (f *fakeLookup) LiveVideoID(ctx context.Context, channelID string) (string, error) {
	f.calls = append(f.calls, "search:"+channelID)
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.live[channelID]; ok {
		return id, nil
	}
	return "", errors.New("not live")
}

type fakeProber struct {
	hits  map[string]string
	fail  map[string]bool
	calls []string
}

func (f *fakeProber) Probe(ctx context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if f.fail[url] {
		return "", errors.New("connection reset")
	}
	if id, ok := f.hits[url]; ok {
		return id, nil
	}
	return "", errors.New("no live video id found")
}

func sourceOf(l Lookup) LookupSource {
	return func(ctx context.Context, apiKey string) (Lookup, error) {
		if apiKey == "" {
			return nil, errors.New("no api key")
		}
		return l, nil
	}
}

const testChannelID = "UCabcdefghijklmnopqrstu"

func TestResolve_ExplicitShortCircuits(t *testing.T) {
	r := New(func(ctx context.Context, apiKey string) (Lookup, error) {
		t.Fatal("lookup must not be built when video_id is set")
		return nil, nil
	}, &failingProber{t: t}, time.Second)

	id, err := r.Resolve(context.Background(), &config.Actions{
		VideoID:       "explicit1",
		APIKey:        "k",
		ChannelHandle: "@streamer",
	})
	if err != nil || id != "explicit1" {
		t.Fatalf("Resolve() = %q, %v; want explicit1", id, err)
	}
}

type failingProber struct{ t *testing.T }

func (p *failingProber) Probe(ctx context.Context, url string) (string, error) {
	p.t.Fatalf("probe must not run, got %s", url)
	return "", nil
}

func TestResolve_HandleThenLive(t *testing.T) {
	l := &fakeLookup{
		channels: map[string]string{"@streamer": testChannelID},
		live:     map[string]string{testChannelID: "vid42"},
	}
	r := New(sourceOf(l), &failingProber{t: t}, time.Second)

	id, err := r.Resolve(context.Background(), &config.Actions{APIKey: "k", ChannelURL: "https://www.youtube.com/@streamer"})
	if err != nil || id != "vid42" {
		t.Fatalf("Resolve() = %q, %v; want vid42", id, err)
	}
	want := []string{"channels:@streamer", "search:" + testChannelID}
	if strings.Join(l.calls, ",") != strings.Join(want, ",") {
		t.Errorf("lookup calls = %v, want %v", l.calls, want)
	}
}

func TestResolve_ChannelIDSkipsHandleLookup(t *testing.T) {
	l := &fakeLookup{live: map[string]string{testChannelID: "vid7"}}
	r := New(sourceOf(l), nil, time.Second)

	id, err := r.Resolve(context.Background(), &config.Actions{APIKey: "k", ChannelID: testChannelID, ChannelHandle: "@streamer"})
	if err != nil || id != "vid7" {
		t.Fatalf("Resolve() = %q, %v; want vid7", id, err)
	}
	if len(l.calls) != 1 || l.calls[0] != "search:"+testChannelID {
		t.Errorf("lookup calls = %v, want only search", l.calls)
	}
}

func TestResolve_APIFaultFallsThroughToProbe(t *testing.T) {
	l := &fakeLookup{err: errors.New("503 backend error")}
	p := &fakeProber{hits: map[string]string{"https://www.youtube.com/@streamer/live": "probed1"}}
	r := New(sourceOf(l), p, time.Second)

	id, err := r.Resolve(context.Background(), &config.Actions{APIKey: "k", ChannelHandle: "@streamer"})
	if err != nil || id != "probed1" {
		t.Fatalf("Resolve() = %q, %v; want probed1", id, err)
	}
	if len(l.calls) != 1 {
		t.Errorf("lookup calls = %v, want one failed handle lookup", l.calls)
	}
}

func TestResolve_NoAPIKeyProbesOnly(t *testing.T) {
	l := &fakeLookup{}
	p := &fakeProber{
		fail: map[string]bool{"https://www.youtube.com/@streamer/live": true},
		hits: map[string]string{"https://www.youtube.com/channel/" + testChannelID + "/live": "probed2"},
	}
	r := New(sourceOf(l), p, time.Second)

	id, err := r.Resolve(context.Background(), &config.Actions{ChannelHandle: "@streamer", ChannelID: testChannelID})
	if err != nil || id != "probed2" {
		t.Fatalf("Resolve() = %q, %v; want probed2", id, err)
	}
	if len(l.calls) != 0 {
		t.Errorf("lookup used without api key: %v", l.calls)
	}
	if len(p.calls) != 2 {
		t.Errorf("probe calls = %v, want handle then channel", p.calls)
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	tests := []struct {
		name    string
		actions *config.Actions
	}{
		{"empty config", &config.Actions{}},
		{"api key without channel", &config.Actions{APIKey: "k"}},
		{"nothing live", &config.Actions{APIKey: "k", ChannelID: testChannelID, ChannelURL: "https://example.com/c/x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(sourceOf(&fakeLookup{}), &fakeProber{}, time.Second)
			_, err := r.Resolve(context.Background(), tt.actions)
			if !errors.Is(err, ErrUnresolvableSession) {
				t.Fatalf("Resolve() error = %v, want ErrUnresolvableSession", err)
			}
			if !strings.Contains(err.Error(), "video_id") || !strings.Contains(err.Error(), "channel_url") {
				t.Errorf("error lacks guidance: %v", err)
			}
		})
	}
}

func TestResolve_PerCallTimeout(t *testing.T) {
	blocking := &blockingProber{}
	r := New(nil, blocking, 20*time.Millisecond)

	start := time.Now()
	_, err := r.Resolve(context.Background(), &config.Actions{ChannelHandle: "@a", ChannelID: testChannelID})
	if !errors.Is(err, ErrUnresolvableSession) {
		t.Fatalf("Resolve() error = %v", err)
	}
	if blocking.calls != 2 {
		t.Errorf("probe calls = %d, want 2", blocking.calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Resolve took %v, timeouts not applied", elapsed)
	}
}

type blockingProber struct{ calls int }

func (b *blockingProber) Probe(ctx context.Context, url string) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		ch   identity.Channel
		want []string
	}{
		{"none", identity.Channel{}, nil},
		{"handle", identity.Channel{Handle: "@a"}, []string{"https://www.youtube.com/@a/live"}},
		{
			"all in order",
			identity.Channel{Handle: "@a", ID: testChannelID, URL: "https://www.youtube.com/@a/"},
			[]string{
				"https://www.youtube.com/@a/live",
				"https://www.youtube.com/channel/" + testChannelID + "/live",
				"https://www.youtube.com/@a/live",
			},
		},
		{"url already live", identity.Channel{URL: "https://youtube.com/c/x/live/"}, []string{"https://youtube.com/c/x/live"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Candidates(tt.ch)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Candidates() = %v, want %v", got, tt.want)
			}
		})
	}
}
