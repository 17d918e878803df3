package component

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/message"
)

var (
	pingReq = message.Type{Domain: "ping", Name: "req"}
	pongRes = message.Type{Domain: "pong", Name: "res"}
	fooBar  = message.Type{Domain: "foo", Name: "bar"}
	fooBaz  = message.Type{Domain: "foo", Name: "baz"}
)

// takeN reads n messages from ch, failing the test on timeout.
func takeN(t *testing.T, ch *channel.Chan, n int, timeout time.Duration) []message.Message {
	t.Helper()
	out := make([]message.Message, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		type result struct {
			msg message.Message
			ok  bool
		}
		got := make(chan result, 1)
		go func() {
			msg, ok := ch.Take()
			got <- result{msg, ok}
		}()
		select {
		case r := <-got:
			if !r.ok {
				t.Fatalf("channel closed after %d of %d messages", len(out), n)
			}
			out = append(out, r.msg)
		case <-deadline:
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func echoComponent(t *testing.T, opts *Options) *Component {
	t.Helper()
	cmp, err := New(Deps{
		ID: "c1",
		StateFn: func(emit EmitFn) StateResult {
			return StateResult{State: map[string]any{"counter": 7}}
		},
		Handlers: map[message.Type]Handler{
			pingReq: func(ctx *Context) {
				ctx.Emit(message.New(pongRes, ctx.Payload))
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)
	return cmp
}

func TestNewRequiresID(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestNewRejectsUnknownBufferSpec(t *testing.T) {
	opts := DefaultOptions()
	opts.InChan = channel.BufferSpec{Kind: "dropping", Size: 1}
	_, err := New(Deps{ID: "c1", Opts: opts})
	require.Error(t, err)
}

func TestEcho(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	cmp := echoComponent(t, opts)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": 1})))
	require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": 2})))

	got := takeN(t, out, 2, 2*time.Second)
	require.Len(t, got, 2)

	assert.Equal(t, pongRes, got[0].Type)
	assert.Equal(t, map[string]int{"n": 1}, got[0].Payload)
	assert.Equal(t, pongRes, got[1].Type)
	assert.Equal(t, map[string]int{"n": 2}, got[1].Payload)

	require.NotNil(t, got[0].Meta)
	require.NotNil(t, got[1].Meta)
	assert.NotEmpty(t, got[0].Meta.Tag)
	assert.NotEmpty(t, got[1].Meta.Tag)
	assert.NotEmpty(t, got[0].Meta.CorrID)
	assert.NotEqual(t, got[0].Meta.CorrID, got[1].Meta.CorrID)
}

func TestEmitPreservesCallerTag(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	cmp := echoComponent(t, opts)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	handlerDone := make(chan struct{})
	go func() {
		cmp.Emit(message.New(pongRes, "direct", message.WithTag("caller-tag")))
		close(handlerDone)
	}()
	<-handlerDone

	got := takeN(t, out, 1, 2*time.Second)
	assert.Equal(t, "caller-tag", got[0].Meta.Tag)
	assert.NotEmpty(t, got[0].Meta.CorrID)
}

func TestCmpSeqAppendedOnReception(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)

	var mu sync.Mutex
	var seqs [][]string
	cmp, err := New(Deps{
		ID: "c1",
		Handlers: map[message.Type]Handler{
			pingReq: func(ctx *Context) {
				mu.Lock()
				seqs = append(seqs, append([]string(nil), ctx.Msg.Meta.CmpSeq...))
				mu.Unlock()
				// Forward the message onward unchanged
				ctx.Emit(ctx.Msg)
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	// Message with an existing path from another component
	msg := message.New(pingReq, nil)
	msg.Meta = &message.Meta{CmpSeq: []string{"c0"}}
	require.NoError(t, cmp.InChan().Put(msg))

	got := takeN(t, out, 1, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, 1)
	assert.Equal(t, []string{"c0", "c1"}, seqs[0])

	// Forwarding the already-sequenced message back out does not append again
	assert.Equal(t, []string{"c0", "c1"}, got[0].Meta.CmpSeq)
}

func TestOrderedProcessingInSendOrder(t *testing.T) {
	opts := DefaultOptions()
	opts.InChan = channel.Fixed(64)
	opts.OutChan = channel.Fixed(64)
	cmp := echoComponent(t, opts)

	out := channel.MustNew(channel.Fixed(64))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": i})))
	}

	got := takeN(t, out, n, 5*time.Second)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, got[i].Payload.(map[string]int)["n"])
	}
}

func TestGetState(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	cmp := echoComponent(t, opts)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	require.NoError(t, cmp.InChan().Put(message.New(message.TypeGetState, nil)))

	got := takeN(t, out, 1, 2*time.Second)
	assert.Equal(t, message.TypeStateSnapshot, got[0].Type)

	payload, ok := got[0].Payload.(message.SnapshotPayload)
	require.True(t, ok)
	assert.Equal(t, "c1", payload.CmpID)
	assert.Equal(t, map[string]any{"counter": 7}, payload.Snapshot)

	// Exactly one response per request
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, out.Len())
}

func TestPublishState(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	cmp := echoComponent(t, opts)

	stateOut := channel.MustNew(channel.Fixed(8))
	cmp.StateMult().Tap(stateOut)
	cmp.SystemReady()

	// Initial seed snapshot from system-ready
	seed := takeN(t, stateOut, 1, 2*time.Second)
	assert.Equal(t, message.TypeAppState, seed[0].Type)
	assert.Equal(t, map[string]any{"counter": 7}, seed[0].Payload)
	require.NotNil(t, seed[0].Meta)
	assert.Equal(t, "c1", seed[0].Meta.From)

	require.NoError(t, cmp.InChan().Put(message.New(message.TypePublishState, nil)))

	got := takeN(t, stateOut, 1, 2*time.Second)
	assert.Equal(t, message.TypeAppState, got[0].Type)
	assert.Equal(t, map[string]any{"counter": 7}, got[0].Payload)
	assert.Equal(t, "c1", got[0].Meta.From)
}

func TestStateMutationPublishesSnapshot(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)

	bump := message.Type{Domain: "counter", Name: "inc"}
	cmp, err := New(Deps{
		ID: "c1",
		StateFn: func(emit EmitFn) StateResult {
			return StateResult{State: map[string]any{"counter": 0}}
		},
		Handlers: map[message.Type]Handler{
			bump: func(ctx *Context) {
				ctx.State.Swap(func(current any) any {
					m := current.(map[string]any)
					return map[string]any{"counter": m["counter"].(int) + 1}
				})
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	stateOut := channel.MustNew(channel.Fixed(16))
	cmp.StateMult().Tap(stateOut)
	cmp.SystemReady()

	takeN(t, stateOut, 1, 2*time.Second) // seed

	require.NoError(t, cmp.InChan().Put(message.New(bump, nil)))

	got := takeN(t, stateOut, 1, 2*time.Second)
	assert.Equal(t, map[string]any{"counter": 1}, got[0].Payload)

	// Quiescence: unchanged state produces no further publications
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, stateOut.Len())
}

func TestSlidingThrottle(t *testing.T) {
	opts := DefaultOptions()
	opts.Throttle = 10 * time.Millisecond

	var mu sync.Mutex
	var seen []int
	cmp, err := New(Deps{
		ID: "c1",
		StatePubHandler: func(ctx *Context) {
			mu.Lock()
			seen = append(seen, ctx.Payload.(map[string]int)["n"])
			mu.Unlock()
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)
	cmp.SystemReady()

	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, cmp.SlidingInChan().Put(message.New(
			message.Type{Domain: "peer", Name: "state"}, map[string]int{"n": i})))
	}

	// Let the throttled loop drain the sliding buffer
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(seen), n)
	require.NotEmpty(t, seen)
	assert.Contains(t, seen, n-1, "the last message sent must be among those processed")
}

func TestFirehoseOn(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	opts.FirehoseChan = channel.Fixed(8)
	opts.SnapshotsOnFirehose = false // keep the seed snapshot off the stream

	cmp, err := New(Deps{
		ID: "c1",
		Handlers: map[message.Type]Handler{
			fooBar: func(ctx *Context) {
				ctx.Emit(message.New(fooBaz, map[string]int{"y": 2}))
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	firehose := channel.MustNew(channel.Fixed(16))
	cmp.FirehoseMult().Tap(firehose)
	cmp.SystemReady()

	require.NoError(t, cmp.InChan().Put(message.New(fooBar, map[string]int{"x": 1})))

	got := takeN(t, firehose, 2, 2*time.Second)

	assert.Equal(t, message.TypeFirehoseRecv, got[0].Type)
	recv, ok := got[0].Payload.(message.FirehoseMsg)
	require.True(t, ok)
	assert.Equal(t, "c1", recv.CmpID)
	assert.Equal(t, fooBar, recv.Msg.Type)
	require.NotNil(t, recv.Meta)
	assert.NotZero(t, recv.TS)

	assert.Equal(t, message.TypeFirehosePut, got[1].Type)
	put, ok := got[1].Payload.(message.FirehoseMsg)
	require.True(t, ok)
	assert.Equal(t, "c1", put.CmpID)
	assert.Equal(t, fooBaz, put.Msg.Type)
}

func TestRelayLoopSuppression(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	opts.FirehoseChan = channel.Fixed(8)
	opts.MsgsOnFirehose = false
	opts.SnapshotsOnFirehose = false

	cmp, err := New(Deps{
		ID: "relay",
		Handlers: map[message.Type]Handler{
			fooBar: func(ctx *Context) {
				ctx.Emit(message.New(fooBaz, nil))
			},
			message.TypeFirehosePut: func(ctx *Context) {
				ctx.Emit(ctx.Msg)
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	firehose := channel.MustNew(channel.Fixed(16))
	cmp.FirehoseMult().Tap(firehose)
	cmp.SystemReady()

	// Ordinary emission produces no envelope of its own
	require.NoError(t, cmp.InChan().Put(message.New(fooBar, nil)))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, firehose.Len())

	// A received firehose-namespace message is forwarded verbatim
	envelope := message.New(message.TypeFirehosePut, message.FirehoseMsg{CmpID: "other"})
	require.NoError(t, cmp.InChan().Put(envelope))

	got := takeN(t, firehose, 1, 2*time.Second)
	assert.Equal(t, message.TypeFirehosePut, got[0].Type)
	payload, ok := got[0].Payload.(message.FirehoseMsg)
	require.True(t, ok)
	assert.Equal(t, "other", payload.CmpID)
}

func TestPreReadyBufferingPreservesOrder(t *testing.T) {
	opts := DefaultOptions()
	opts.InChan = channel.Fixed(8)
	opts.OutChan = channel.Fixed(8)
	cmp := echoComponent(t, opts)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)

	// Emissions before system-ready are buffered in the put-channel
	for i := 0; i < 3; i++ {
		require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": i})))
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, out.Len(), "nothing may reach the out-channel pre-ready")

	cmp.SystemReady()

	got := takeN(t, out, 3, 2*time.Second)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, got[i].Payload.(map[string]int)["n"])
	}
}

func TestHandlerPanicDoesNotSilenceComponent(t *testing.T) {
	opts := DefaultOptions()
	opts.InChan = channel.Fixed(8)
	opts.OutChan = channel.Fixed(8)

	cmp, err := New(Deps{
		ID: "c1",
		Handlers: map[message.Type]Handler{
			pingReq: func(ctx *Context) {
				if ctx.Payload.(map[string]int)["n"] == 1 {
					panic("bad message")
				}
				ctx.Emit(message.New(pongRes, ctx.Payload))
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": 1})))
	require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": 2})))

	got := takeN(t, out, 1, 2*time.Second)
	assert.Equal(t, 2, got[0].Payload.(map[string]int)["n"])
	assert.Equal(t, 1, int(cmp.Health().ErrorCount))
}

func TestUnhandledAndAllMsgsHandlers(t *testing.T) {
	opts := DefaultOptions()
	opts.InChan = channel.Fixed(8)
	opts.OutChan = channel.Fixed(8)

	var mu sync.Mutex
	var unhandled, all []string
	cmp, err := New(Deps{
		ID: "c1",
		Handlers: map[message.Type]Handler{
			pingReq: func(ctx *Context) {},
		},
		UnhandledHandler: func(ctx *Context) {
			mu.Lock()
			unhandled = append(unhandled, ctx.Type.Key())
			mu.Unlock()
		},
		AllMsgsHandler: func(ctx *Context) {
			mu.Lock()
			all = append(all, ctx.Type.Key())
			mu.Unlock()
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)
	cmp.SystemReady()

	require.NoError(t, cmp.InChan().Put(message.New(pingReq, nil)))
	require.NoError(t, cmp.InChan().Put(message.New(fooBar, nil)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(all) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"foo/bar"}, unhandled)
	assert.Equal(t, []string{"ping/req", "foo/bar"}, all)
}

func TestEmitAfterShutdownIsDropped(t *testing.T) {
	cmp := echoComponent(t, nil)
	cmp.SystemReady()
	cmp.Shutdown()

	// Must not panic or block
	cmp.Emit(message.New(pongRes, "late"))
}

func TestShutdownInvokesStateShutdown(t *testing.T) {
	released := make(chan struct{})
	cmp, err := New(Deps{
		ID: "c1",
		StateFn: func(emit EmitFn) StateResult {
			return StateResult{
				State:    nil,
				Shutdown: func() { close(released) },
			}
		},
	})
	require.NoError(t, err)

	cmp.Shutdown()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("state shutdown closure not invoked")
	}
}

func TestSnapshotXformAndWatch(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	opts.Watch = func(state any) any {
		return state.(map[string]any)["public"]
	}

	cmp, err := New(Deps{
		ID: "c1",
		StateFn: func(emit EmitFn) StateResult {
			return StateResult{State: map[string]any{
				"public": 42,
				"secret": "hidden",
			}}
		},
		SnapshotXform: func(watched any) any {
			return fmt.Sprintf("v=%v", watched)
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	stateOut := channel.MustNew(channel.Fixed(8))
	cmp.StateMult().Tap(stateOut)
	cmp.SystemReady()

	got := takeN(t, stateOut, 1, 2*time.Second)
	assert.Equal(t, "v=42", got[0].Payload)
}

func TestWatchProjectionSuppressesIrrelevantChanges(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	opts.Watch = func(state any) any {
		return state.(map[string]any)["public"]
	}

	touch := message.Type{Domain: "state", Name: "touch"}
	cmp, err := New(Deps{
		ID: "c1",
		StateFn: func(emit EmitFn) StateResult {
			return StateResult{State: map[string]any{"public": 1, "internal": 0}}
		},
		Handlers: map[message.Type]Handler{
			touch: func(ctx *Context) {
				ctx.State.Swap(func(current any) any {
					m := current.(map[string]any)
					return map[string]any{"public": m["public"], "internal": m["internal"].(int) + 1}
				})
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	stateOut := channel.MustNew(channel.Fixed(8))
	cmp.StateMult().Tap(stateOut)
	cmp.SystemReady()

	takeN(t, stateOut, 1, 2*time.Second) // seed

	require.NoError(t, cmp.InChan().Put(message.New(touch, nil)))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, stateOut.Len(), "watched projection unchanged, no snapshot expected")
}

func TestSnapshotTickModeCoalesces(t *testing.T) {
	opts := DefaultOptions()
	opts.OutChan = channel.Fixed(8)
	opts.SnapshotMode = SnapshotTick
	opts.TickInterval = 20 * time.Millisecond

	bump := message.Type{Domain: "counter", Name: "inc"}
	cmp, err := New(Deps{
		ID: "c1",
		StateFn: func(emit EmitFn) StateResult {
			return StateResult{State: 0}
		},
		Handlers: map[message.Type]Handler{
			bump: func(ctx *Context) {
				ctx.State.Swap(func(current any) any { return current.(int) + 1 })
			},
		},
		Opts: opts,
	})
	require.NoError(t, err)
	t.Cleanup(cmp.Shutdown)

	stateOut := channel.MustNew(channel.Fixed(64))
	cmp.StateMult().Tap(stateOut)
	cmp.SystemReady()

	takeN(t, stateOut, 1, 2*time.Second) // seed

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, cmp.InChan().Put(message.New(bump, nil)))
	}

	// At least one snapshot is eventually published after the last change
	got := takeN(t, stateOut, 1, 2*time.Second)
	require.NotEmpty(t, got)

	time.Sleep(200 * time.Millisecond)
	drained := stateOut.Len()
	assert.Less(t, drained+1, n, "tick mode must coalesce rapid changes")
}

func TestDataFlowCounters(t *testing.T) {
	opts := DefaultOptions()
	opts.InChan = channel.Fixed(8)
	opts.OutChan = channel.Fixed(8)
	cmp := echoComponent(t, opts)

	out := channel.MustNew(channel.Fixed(8))
	cmp.OutMult().Tap(out)
	cmp.SystemReady()

	require.NoError(t, cmp.InChan().Put(message.New(pingReq, map[string]int{"n": 1})))
	takeN(t, out, 1, 2*time.Second)

	flow := cmp.DataFlow()
	assert.Equal(t, int64(1), flow.MessagesReceived)
	assert.Equal(t, int64(1), flow.MessagesEmitted)
	assert.False(t, flow.LastActivity.IsZero())
	assert.True(t, cmp.Health().Healthy)
}
