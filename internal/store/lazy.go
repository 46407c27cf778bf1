package store

import (
	"context"
	"errors"
	"questwatch/internal/quest"
	"sync"
)

// Opener connects to a backend, Open bound to a connection string is one.
type Opener func(ctx context.Context) (Store, error)

// Lazy defers connecting until the store is first used. A failed connect is
// returned as ErrUnavailable and attempted again on the next call, so an
// outage (or a missing connection string) only fails the operations made
// while it lasts.
type Lazy struct {
	open Opener

	mutex sync.Mutex
	inner Store
}

func NewLazy(open Opener) *Lazy {
	return &Lazy{open: open}
}

// Connect makes sure a connection exists.
func (l *Lazy) Connect(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

func (l *Lazy) get(ctx context.Context) (Store, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.inner != nil {
		return l.inner, nil
	}
	s, err := l.open(ctx)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = unavailable("open", err)
		}
		return nil, err
	}
	l.inner = s
	return s, nil
}

func (l *Lazy) Exists(ctx context.Context, id string) (bool, error) {
	s, err := l.get(ctx)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, id)
}

func (l *Lazy) Insert(ctx context.Context, record quest.Record) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Insert(ctx, record)
}

func (l *Lazy) InsertIfAbsent(ctx context.Context, record quest.Record) (bool, error) {
	s, err := l.get(ctx)
	if err != nil {
		return false, err
	}
	return s.InsertIfAbsent(ctx, record)
}

func (l *Lazy) Get(ctx context.Context, id string) (quest.Record, error) {
	s, err := l.get(ctx)
	if err != nil {
		return quest.Record{}, err
	}
	return s.Get(ctx, id)
}

func (l *Lazy) List(ctx context.Context) ([]quest.Record, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.List(ctx)
}

// Close closes the connection if one was made, a later call reconnects.
func (l *Lazy) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.inner == nil {
		return nil
	}
	err := l.inner.Close()
	l.inner = nil
	return err
}
