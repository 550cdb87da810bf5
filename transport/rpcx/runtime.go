// Package rpcx implements core.Runtime over smallnest/rpcx, grounded
// on internal/netw/rpcx.go's RpcxServer/ClientEnd pairing: one TCP
// rpcx server per node, one XClient per peer, msgp-framed RPC bodies.
package rpcx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Allen1211/msgp/msgp"
	rpcx_client "github.com/smallnest/rpcx/client"
	"github.com/smallnest/rpcx/protocol"
	"github.com/smallnest/rpcx/server"
	"github.com/smallnest/rpcx/share"
	"github.com/sirupsen/logrus"

	"github.com/raftgroup/core/internal/codec"
	"github.com/raftgroup/core/internal/core"
)

const serializeTypeMsgp protocol.SerializeType = 5

const serviceName = "RaftGroup"

func init() {
	share.Codecs[serializeTypeMsgp] = &codec.RPCCodec{}
}

// Runtime is one node's core.Runtime: a single-goroutine executor
// (loop) draining the tasks channel that core.Node's work is queued
// on, an rpcx server receiving inbound
// messages, and a pool of rpcx clients for outbound Send.
type Runtime struct {
	self   core.Endpoint
	logger *logrus.Logger

	tasks chan core.Task

	mu    sync.Mutex
	peers map[core.Endpoint]rpcx_client.XClient
	node  *core.Node

	srv *server.Server

	onReport func(core.NodeReport)
	onTerminated func()

	stop chan struct{}
}

// New builds a Runtime listening on addr. AttachNode must be called
// once the core.Node wrapping it exists (the two are mutually
// dependent at construction time: NewNode needs a Runtime, the
// Runtime's inbound handler needs the Node).
func New(self core.Endpoint, addr string, logger *logrus.Logger) (*Runtime, error) {
	rt := &Runtime{
		self:   self,
		logger: logger,
		tasks:  make(chan core.Task, 4096),
		peers:  make(map[core.Endpoint]rpcx_client.XClient),
		stop:   make(chan struct{}),
	}
	srv := server.NewServer()
	if err := srv.RegisterName(serviceName, &receiver{rt: rt}, ""); err != nil {
		return nil, fmt.Errorf("rpcx runtime: register service: %w", err)
	}
	rt.srv = srv
	go func() {
		if err := srv.Serve("tcp", addr); err != nil {
			rt.logger.Errorf("rpcx runtime %s: server exited: %v", self, err)
		}
	}()
	go rt.loop()
	return rt, nil
}

// AttachNode completes construction and registers the operator
// callbacks the host wants OnReport/OnGroupTerminated routed to.
func (rt *Runtime) AttachNode(node *core.Node, onReport func(core.NodeReport), onTerminated func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.node = node
	rt.onReport = onReport
	rt.onTerminated = onTerminated
}

// AddPeer registers the network address for a group member so Send
// can reach it.
func (rt *Runtime) AddPeer(ep core.Endpoint, addr string) error {
	d, err := rpcx_client.NewPeer2PeerDiscovery("tcp@"+addr, "")
	if err != nil {
		return fmt.Errorf("rpcx runtime: discovery for %s: %w", ep, err)
	}
	option := rpcx_client.DefaultOption
	option.SerializeType = serializeTypeMsgp
	client := rpcx_client.NewXClient(serviceName, rpcx_client.Failfast, rpcx_client.RoundRobin, d, option)
	rt.mu.Lock()
	rt.peers[ep] = client
	rt.mu.Unlock()
	return nil
}

func (rt *Runtime) Close() {
	close(rt.stop)
	rt.srv.Close()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, c := range rt.peers {
		c.Close()
	}
}

func (rt *Runtime) loop() {
	for {
		select {
		case task := <-rt.tasks:
			task()
		case <-rt.stop:
			return
		}
	}
}

func (rt *Runtime) Execute(task core.Task) {
	select {
	case rt.tasks <- task:
	case <-rt.stop:
	}
}

func (rt *Runtime) Submit(task core.Task) {
	rt.Execute(task)
}

type timer struct {
	t *time.Timer
}

func (t *timer) Stop() bool { return t.t.Stop() }

func (rt *Runtime) Schedule(task core.Task, delay time.Duration) core.Timer {
	t := time.AfterFunc(delay, func() { rt.Execute(task) })
	return &timer{t: t}
}

// Send is best-effort (spec.md §5): messages to unknown peers are
// dropped silently, and encode or call failures are logged; nothing
// is surfaced to the caller.
func (rt *Runtime) Send(to core.Endpoint, msg core.Message) {
	rt.mu.Lock()
	client, ok := rt.peers[to]
	rt.mu.Unlock()
	if !ok {
		return
	}
	env, err := encodeMessage(msg)
	if err != nil {
		rt.logger.Warnf("rpcx runtime %s: encode to %s failed: %v", rt.self, to, err)
		return
	}
	go func() {
		var reply ack
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Call(ctx, "Deliver", &env, &reply); err != nil {
			rt.logger.Debugf("rpcx runtime %s: send to %s failed: %v", rt.self, to, err)
		}
	}()
}

func (rt *Runtime) OnReport(report core.NodeReport) {
	rt.mu.Lock()
	cb := rt.onReport
	rt.mu.Unlock()
	if cb != nil {
		cb(report)
	}
}

func (rt *Runtime) OnGroupTerminated() {
	rt.mu.Lock()
	cb := rt.onTerminated
	rt.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// ack is the empty reply shape Deliver hands back; rpcx requires a
// reply pointer even when there is nothing to return.
type ack struct{}

func (z *ack) EncodeMsg(en *msgp.Writer) error {
	return en.WriteMapHeader(0)
}

func (z *ack) DecodeMsg(dc *msgp.Reader) error {
	fields, err := dc.ReadMapHeader()
	if err != nil {
		return err
	}
	for i := uint32(0); i < fields; i++ {
		if _, err := dc.ReadString(); err != nil {
			return err
		}
		if err := dc.Skip(); err != nil {
			return err
		}
	}
	return nil
}

// receiver is the rpcx-registered service object; its one exported
// method, Deliver, is the wire entry point for every Message kind
// (spec.md §9's single HandleMessage dispatch, fed from the network
// instead of an in-process call).
type receiver struct {
	rt *Runtime
}

func (r *receiver) Deliver(ctx context.Context, env *envelope, reply *ack) error {
	msg, err := decodeMessage(*env)
	if err != nil {
		return err
	}
	r.rt.mu.Lock()
	node := r.rt.node
	r.rt.mu.Unlock()
	if node == nil {
		return fmt.Errorf("rpcx runtime: node not attached yet")
	}
	r.rt.Execute(func() { node.HandleMessage(msg) })
	return nil
}
