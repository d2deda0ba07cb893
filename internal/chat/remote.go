package chat

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/network"

	"github.com/hackmesh/hub/internal/common/logging"
	"github.com/hackmesh/hub/internal/errs"
)

// ChatProtocol is the libp2p stream protocol non-holder nodes use to
// forward chat operations to the elected holder.
const ChatProtocol = "/hackmesh/chat/1.0.0"

// Dispatcher forwards a chat operation to a remote holder. A transport
// failure (dial, encode or decode) from Call/Cast reduces to
// errs.ErrChatUnavailable, so callers outside this package never see
// raw transport errors. A domain error reported by the holder (e.g.
// room_exists) comes back from RemoteDispatcher.Call as an error with
// the same message text, not as the errs sentinel value itself.
type Dispatcher interface {
	Call(ctx context.Context, holder HolderInfo, tag string, args interface{}) (interface{}, error)
	Cast(ctx context.Context, holder HolderInfo, tag string, args interface{}) error
}

// wireRequest/wireReply are the gob-encoded envelope exchanged over a
// ChatProtocol stream. args/value carry chat-package argument and
// result types; gob requires both ends register the same concrete
// types, done in init() below.
type wireRequest struct {
	Tag  string
	Args interface{}
	Cast bool
}

type wireReply struct {
	Value interface{}
	Err   string
}

func init() {
	gob.Register(sendMessageArgs{})
	gob.Register(Message{})
	gob.Register([]Message{})
	gob.Register([]string{})
	gob.Register("")
}

// RemoteDispatcher forwards requests over libp2p streams on
// ChatProtocol, retrying transient dial/stream failures with
// exponential backoff before giving up.
type RemoteDispatcher struct {
	logger *logging.Logger
	host   host.Host
}

// NewRemoteDispatcher wraps h for outbound chat forwarding. Register
// the inbound handler separately via ServeLocal on the node that may
// end up holding the singleton.
func NewRemoteDispatcher(h host.Host) *RemoteDispatcher {
	return &RemoteDispatcher{logger: logging.GetLogger("chat.remote"), host: h}
}

// ServeLocal installs a stream handler on h that dispatches incoming
// wireRequests into srv's local kernel, replying with a wireReply.
// Call this once per process, after the process knows it may become
// holder.
func ServeLocal(h host.Host, srv *Server) {
	h.SetStreamHandler(ChatProtocol, func(s network.Stream) {
		defer s.Close()

		var req wireRequest
		dec := gob.NewDecoder(bufio.NewReader(s))
		if err := dec.Decode(&req); err != nil {
			return
		}

		if req.Cast {
			srv.kernel.Cast(req.Tag, req.Args)
			return
		}

		ctx := context.Background()
		var reply wireReply
		v, err := srv.call(ctx, req.Tag, req.Args)
		reply.Value = v
		if err != nil {
			reply.Err = err.Error()
		}
		enc := gob.NewEncoder(s)
		_ = enc.Encode(reply)
	})
}

func (d *RemoteDispatcher) openStream(ctx context.Context, holder HolderInfo) (network.Stream, error) {
	var stream network.Stream
	op := func() error {
		s, err := d.host.NewStream(ctx, holder.PeerID, ChatProtocol)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrChatUnavailable, err)
	}
	return stream, nil
}

// Call opens a stream to holder, sends tag/args, and waits for a
// reply.
func (d *RemoteDispatcher) Call(ctx context.Context, holder HolderInfo, tag string, args interface{}) (interface{}, error) {
	stream, err := d.openStream(ctx, holder)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	enc := gob.NewEncoder(stream)
	if err := enc.Encode(wireRequest{Tag: tag, Args: args}); err != nil {
		return nil, errs.ErrChatUnavailable
	}

	var reply wireReply
	dec := gob.NewDecoder(bufio.NewReader(stream))
	if err := dec.Decode(&reply); err != nil {
		return nil, errs.ErrChatUnavailable
	}
	if reply.Err != "" {
		return reply.Value, fmt.Errorf("%s", reply.Err)
	}
	return reply.Value, nil
}

// Cast opens a stream to holder and sends tag/args without waiting
// for a reply, matching the kernel's fire-and-forget Cast semantics.
func (d *RemoteDispatcher) Cast(ctx context.Context, holder HolderInfo, tag string, args interface{}) error {
	stream, err := d.openStream(ctx, holder)
	if err != nil {
		return err
	}
	defer stream.Close()

	enc := gob.NewEncoder(stream)
	if err := enc.Encode(wireRequest{Tag: tag, Args: args, Cast: true}); err != nil {
		return errs.ErrChatUnavailable
	}
	return nil
}
