// Package demo builds the lending library the demo and inspect commands
// drive: a members actor mounted early, a books actor that publishes an
// update after every addition, and a catalog that subscribes to it.
package demo

import (
	"errors"
	"fmt"

	"github.com/zjrosen/reactor/internal/log"
	"github.com/zjrosen/reactor/internal/reactor"
	"github.com/zjrosen/reactor/internal/scope"
)

// Event and action keys of the library.
var (
	KeyAddBook      = scope.Scoped("books", "add")
	KeyBookUpdated  = scope.Scoped("books", "dataUpdated")
	KeyCreateMember = scope.Scoped("members", "create")
	KeyStats        = scope.Named("stats")
)

// ErrEmptyName is returned for a book or member without a name.
var ErrEmptyName = errors.New("name must not be empty")

// Book is a catalogued book.
type Book struct {
	ID    int
	Title string
}

// Update is the payload of books:dataUpdated.
type Update struct {
	Book  Book
	Total int
}

// Stats counts what the library holds.
type Stats struct {
	Books   int
	Members int
	Updates int
}

// Library owns the reactor tree of the demo.
type Library struct {
	reactor *reactor.Reactor
	books   *reactor.Actor
	members *reactor.Actor
	catalog *reactor.Subscribe
	typo    *reactor.Subscribe

	shelf    []Book
	roster   []string
	updates  []Update
	onUpdate func(Update)
}

// Option configures a Library.
type Option func(*Library)

// WithTypo adds a subscriber whose event name is misspelled. It never
// connects and eventually raises an error carrying the correct name as a
// suggestion.
func WithTypo() Option {
	return func(l *Library) {
		l.typo = reactor.MustSubscribe(reactor.On("books:dataUpdate", func(any) error { return nil }))
	}
}

// OnUpdate is called for every update the catalog receives.
func OnUpdate(fn func(Update)) Option {
	return func(l *Library) { l.onUpdate = fn }
}

// New assembles the library. Mount it to start.
func New(opts ...Option) *Library {
	l := &Library{}
	for _, opt := range opts {
		opt(l)
	}

	l.members = reactor.NewActor("members",
		reactor.MustAction(reactor.ActionSpec{
			Handlers:      map[string]scope.Handler{"create": l.createMember},
			ReturnsResult: true,
		}),
		reactor.MustAction(reactor.ActionSpec{
			Handlers:      map[string]scope.Handler{"stats": l.stats},
			Bare:          true,
			ReturnsResult: true,
		}),
	)
	l.books = reactor.NewActor("books",
		reactor.MustAction(reactor.ActionSpec{
			Handlers:      map[string]scope.Handler{"add": l.addBook},
			ReturnsResult: true,
		}),
		reactor.MustPublish(reactor.PublishSpec{Event: "dataUpdated"}),
	)
	l.catalog = reactor.MustSubscribe(reactor.On(KeyBookUpdated.String(), l.bookUpdated))
	audit := reactor.MustAction(reactor.ActionSpec{
		Handlers: map[string]scope.Handler{KeyAddBook.String(): l.audit},
		Observer: true,
	})

	l.reactor = reactor.NewReactor("library").
		Early(l.members).
		Add(l.books, l.catalog, audit)
	if l.typo != nil {
		l.reactor.Add(l.typo)
	}
	return l
}

// Mount implements reactor.Component.
func (l *Library) Mount(parent scope.Target) error {
	return l.reactor.Mount(parent)
}

// Unmount implements reactor.Component.
func (l *Library) Unmount() error {
	return l.reactor.Unmount()
}

// Reactor returns the library's reactor.
func (l *Library) Reactor() *reactor.Reactor { return l.reactor }

// Catalog returns the books:dataUpdated subscriber.
func (l *Library) Catalog() *reactor.Subscribe { return l.catalog }

// Typo returns the misspelled subscriber, or nil without WithTypo.
func (l *Library) Typo() *reactor.Subscribe { return l.typo }

// Updates returns the updates the catalog received.
func (l *Library) Updates() []Update { return l.updates }

// AddBook runs books:add.
func (l *Library) AddBook(title string) (Book, error) {
	v, err := l.reactor.ActionResult(KeyAddBook, title)
	if err != nil {
		return Book{}, err
	}
	book, ok := v.(Book)
	if !ok {
		return Book{}, fmt.Errorf("books:add returned %T", v)
	}
	return book, nil
}

// CreateMember runs members:create and returns the new member ID.
func (l *Library) CreateMember(name string) (string, error) {
	v, err := l.reactor.Call(KeyCreateMember, name)
	if err != nil {
		return "", err
	}
	id, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("members:create returned %T", v)
	}
	return id, nil
}

// Stats runs the stats action.
func (l *Library) Stats() (Stats, error) {
	v, err := l.reactor.ActionResult(KeyStats, nil)
	if err != nil {
		return Stats{}, err
	}
	s, ok := v.(Stats)
	if !ok {
		return Stats{}, fmt.Errorf("stats returned %T", v)
	}
	return s, nil
}

func (l *Library) addBook(ev *scope.Event) (any, error) {
	title, _ := ev.Detail.(string)
	if title == "" {
		return nil, fmt.Errorf("adding book: %w", ErrEmptyName)
	}
	book := Book{ID: len(l.shelf) + 1, Title: title}
	l.shelf = append(l.shelf, book)
	if _, err := l.books.Notify("dataUpdated", Update{Book: book, Total: len(l.shelf)}); err != nil {
		return nil, fmt.Errorf("announcing book: %w", err)
	}
	return book, nil
}

func (l *Library) createMember(ev *scope.Event) (any, error) {
	name, _ := ev.Detail.(string)
	if name == "" {
		return nil, fmt.Errorf("creating member: %w", ErrEmptyName)
	}
	l.roster = append(l.roster, name)
	return fmt.Sprintf("m-%03d", len(l.roster)), nil
}

func (l *Library) stats(*scope.Event) (any, error) {
	return Stats{Books: len(l.shelf), Members: len(l.roster), Updates: len(l.updates)}, nil
}

func (l *Library) bookUpdated(detail any) error {
	u, ok := detail.(Update)
	if !ok {
		return fmt.Errorf("unexpected update payload %T", detail)
	}
	l.updates = append(l.updates, u)
	if l.onUpdate != nil {
		l.onUpdate(u)
	}
	return nil
}

func (l *Library) audit(ev *scope.Event) (any, error) {
	log.Info(log.CatActor, "book requested", "title", ev.Detail)
	return nil, nil
}
