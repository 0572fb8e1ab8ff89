package service

import (
	"sync"

	"github.com/content-sync-engine/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Listener receives the full post snapshot after every cache mutation
type Listener func(posts []models.Post)

// broadcaster fans snapshots out to subscribers. Each subscriber has its own
// goroutine and a one-slot mailbox where the newest snapshot replaces an
// undelivered one, so publish never blocks.
type broadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*subscriber
	log  zerolog.Logger
}

type subscriber struct {
	id       uuid.UUID
	listener Listener
	mailbox  chan []models.Post
	done     chan struct{}
	once     sync.Once
	log      zerolog.Logger
}

func newBroadcaster(log zerolog.Logger) *broadcaster {
	return &broadcaster{
		subs: make(map[uuid.UUID]*subscriber),
		log:  log,
	}
}

// subscribe registers listener and returns its unsubscribe func
func (b *broadcaster) subscribe(listener Listener) func() {
	sub := &subscriber{
		id:       uuid.New(),
		listener: listener,
		mailbox:  make(chan []models.Post, 1),
		done:     make(chan struct{}),
	}
	sub.log = b.log.With().Str("subscriber_id", sub.id.String()).Logger()

	b.mu.Lock()
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	go sub.run()
	b.log.Debug().Str("subscriber_id", sub.id.String()).Int("subscribers", count).Msg("Subscriber added")

	return func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
		sub.stop()
	}
}

func (b *broadcaster) publish(posts []models.Post) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.offer(posts)
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uuid.UUID]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

// offer puts posts in the mailbox, dropping an undelivered older snapshot
func (s *subscriber) offer(posts []models.Post) {
	for {
		select {
		case s.mailbox <- posts:
			return
		default:
		}
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case posts := <-s.mailbox:
			s.deliver(posts)
		}
	}
}

func (s *subscriber) deliver(posts []models.Post) {
	// A panicking listener must not take down the delivery goroutine
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Msg("Subscriber panicked - recovered")
		}
	}()
	s.listener(models.ClonePosts(posts))
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}
