package database

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	listenerMinReconnect = 5 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
	localFeedBuffer      = 256
)

// listenPostgres runs LISTEN on channel until ctx is done. A resync is requested once
// listening starts and after every reconnect, since notifications may have been missed.
// Lost connections are re-established by pq.Listener.
func listenPostgres(ctx context.Context, dsn, channel string, logger *logrus.Entry, deliver func(configRef, bool)) error {
	listener := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("Config change listener connected")
		case pq.ListenerEventDisconnected:
			logger.WithError(err).Warn("Config change listener disconnected")
		case pq.ListenerEventReconnected:
			logger.Info("Config change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.WithError(err).Warn("Config change listener connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return err
	}
	// Writes committed before LISTEN took effect are only visible to a full read.
	deliver(configRef{}, true)

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			if n == nil {
				// Sent by pq after a reconnect.
				deliver(configRef{}, true)
				continue
			}
			var ref configRef
			if err := json.Unmarshal([]byte(n.Extra), &ref); err != nil {
				logger.WithError(err).WithField("payload", n.Extra).Warn("Ignoring malformed config change notification")
				continue
			}
			deliver(ref, false)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				logger.WithError(err).Warn("Config change listener ping failed")
			}
		}
	}
}

// localBroker fans committed writes out to in-process subscribers.
// A subscriber that falls behind loses individual events and receives a resync instead.
type localBroker struct {
	mu   sync.Mutex
	subs map[int]*localSub
	next int
}

type localSub struct {
	ch       chan configRef
	overflow atomic.Bool
	wake     chan struct{}
}

func newLocalBroker() *localBroker {
	return &localBroker{subs: make(map[int]*localSub)}
}

func (b *localBroker) publish(ref configRef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		select {
		case s.ch <- ref:
		default:
			s.overflow.Store(true)
			select {
			case s.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (b *localBroker) listen(ctx context.Context, deliver func(configRef, bool)) error {
	s := &localSub{ch: make(chan configRef, localFeedBuffer), wake: make(chan struct{}, 1)}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	deliver(configRef{}, true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ref := <-s.ch:
			deliver(ref, false)
		case <-s.wake:
		}
		if s.overflow.CompareAndSwap(true, false) {
			deliver(configRef{}, true)
		}
	}
}
