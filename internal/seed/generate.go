package seed

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// window is how far back generated history reaches.
const window = 90

// Order statuses.
const (
	StatusPending   = "pending"
	StatusShipped   = "shipped"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var (
	statuses   = []string{StatusPending, StatusShipped, StatusCompleted, StatusCancelled}
	categories = []string{
		"Electronics",
		"Clothing",
		"Books",
		"Home & Garden",
		"Sports",
		"Toys",
		"Food & Beverage",
		"Beauty",
	}
)

type User struct {
	ID        int
	Name      string
	Email     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

type Product struct {
	ID        int
	Name      string
	Category  string
	Price     float64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

type Order struct {
	ID        int
	UserID    int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	OrderID   int
	ProductID int
	Quantity  int
}

// orderWindow bounds the creation day of an order, counted from the start of
// the history window. minAge excludes users created too recently.
type orderWindow struct {
	minAge         time.Duration
	firstDay       int
	lastDay        int
	minLag, maxLag int // days between created_at and updated_at
}

var orderWindows = map[string]orderWindow{
	StatusPending:   {minAge: 24 * time.Hour, firstDay: 76, lastDay: 90},
	StatusShipped:   {minAge: 5 * 24 * time.Hour, firstDay: 61, lastDay: 85, minLag: 1, maxLag: 5},
	StatusCompleted: {minAge: 15 * 24 * time.Hour, firstDay: 11, lastDay: 75, minLag: 5, maxLag: 15},
	StatusCancelled: {minAge: 15 * 24 * time.Hour, firstDay: 11, lastDay: 75, minLag: 5, maxLag: 15},
}

// Generator produces a reproducible shop history ending at now. The same
// seed and now always yield the same data.
type Generator struct {
	rng   *rand.Rand
	faker *gofakeit.Faker
	now   time.Time
	base  time.Time
	seen  map[string]struct{}
}

func NewGenerator(seed int64, now time.Time) *Generator {
	now = now.UTC()
	return &Generator{
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		faker: gofakeit.New(uint64(seed)),
		now:   now,
		base:  now.AddDate(0, 0, -window),
		seen:  make(map[string]struct{}),
	}
}

// between returns a uniform integer in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}

// atRandomClock keeps the date of t and picks a random time of day.
func (g *Generator) atRandomClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		g.rng.IntN(24), g.rng.IntN(60), g.rng.IntN(60), 0, time.UTC)
}

// history returns created/updated timestamps inside the window, with updated
// never before created. deleted is set with probability deleteRate.
func (g *Generator) history(deleteRate float64) (created, updated time.Time, deleted *time.Time) {
	day := g.between(0, window)
	created = g.atRandomClock(g.base.AddDate(0, 0, day))
	if day == window {
		return created, created, nil
	}

	lag := min(g.between(0, window-1), window-day)
	updated = g.atRandomClock(created.AddDate(0, 0, lag))
	if updated.Before(created) {
		updated = created
	}
	if g.rng.Float64() < deleteRate {
		d := updated
		deleted = &d
	}
	return created, updated, deleted
}

func (g *Generator) uniqueEmail(i int) string {
	email := strings.ToLower(g.faker.Email())
	if _, dup := g.seen[email]; dup {
		email = fmt.Sprintf("%d.%s", i, email)
	}
	g.seen[email] = struct{}{}
	return email
}

// Users generates n users, 5% of them soft deleted. IDs are provisional
// (1..n) until the rows are inserted.
func (g *Generator) Users(n int) []User {
	users := make([]User, 0, n)
	for i := range n {
		created, updated, deleted := g.history(0.05)
		users = append(users, User{
			ID:        i + 1,
			Name:      g.faker.Name(),
			Email:     g.uniqueEmail(i),
			Address:   g.faker.Address().Address,
			CreatedAt: created,
			UpdatedAt: updated,
			DeletedAt: deleted,
		})
	}
	return users
}

// Products generates n products across the fixed categories, 3% of them
// soft deleted.
func (g *Generator) Products(n int) []Product {
	products := make([]Product, 0, n)
	for i := range n {
		category := categories[g.rng.IntN(len(categories))]
		created, updated, deleted := g.history(0.03)
		price := 5.0 + g.rng.Float64()*495.0
		products = append(products, Product{
			ID:        i + 1,
			Name:      g.faker.ProductName(),
			Category:  category,
			Price:     float64(int(price*100+0.5)) / 100,
			CreatedAt: created,
			UpdatedAt: updated,
			DeletedAt: deleted,
		})
	}
	return products
}

// Orders generates n orders for users. Every order is created after its
// user; pending orders are recent, shipped ones one to four weeks old and
// completed or cancelled ones older.
func (g *Generator) Orders(users []User, n int) ([]Order, error) {
	orders := make([]Order, 0, n)
	for i := range n {
		status := statuses[g.rng.IntN(len(statuses))]
		w := orderWindows[status]

		eligible := make([]User, 0, len(users))
		for _, u := range users {
			if u.CreatedAt.Before(g.now.Add(-w.minAge)) {
				eligible = append(eligible, u)
			}
		}
		if len(eligible) == 0 {
			return nil, fmt.Errorf("order %d: no user old enough for a %s order", i+1, status)
		}
		user := eligible[g.rng.IntN(len(eligible))]

		sinceBase := int(user.CreatedAt.Sub(g.base).Hours() / 24)
		day := g.between(min(max(sinceBase, w.firstDay), w.lastDay), w.lastDay)
		created := g.atRandomClock(g.base.AddDate(0, 0, day))
		if !created.After(user.CreatedAt) {
			created = user.CreatedAt.Add(time.Duration(g.between(1, 24)) * time.Hour)
		}

		updated := created
		if w.maxLag > 0 {
			updated = g.atRandomClock(created.AddDate(0, 0, g.between(w.minLag, w.maxLag)))
			if updated.Before(created) {
				updated = created
			}
		}

		orders = append(orders, Order{
			ID:        i + 1,
			UserID:    user.ID,
			Status:    status,
			CreatedAt: created,
			UpdatedAt: updated,
		})
	}
	return orders, nil
}

// ErrNoProducts is returned when no product predates any order.
var ErrNoProducts = errors.New("no products available for order items")

// OrderItems generates 1-5 distinct products per order, each created before
// the order. Orders without an eligible product get no items.
func (g *Generator) OrderItems(orders []Order, products []Product) ([]OrderItem, error) {
	if len(products) == 0 && len(orders) > 0 {
		return nil, ErrNoProducts
	}

	var items []OrderItem
	for _, o := range orders {
		var available []int
		for _, p := range products {
			if p.CreatedAt.Before(o.CreatedAt) {
				available = append(available, p.ID)
			}
		}
		if len(available) == 0 {
			continue
		}

		count := g.between(1, min(5, len(available)))
		g.rng.Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
		for _, pid := range available[:count] {
			items = append(items, OrderItem{
				OrderID:   o.ID,
				ProductID: pid,
				Quantity:  g.between(1, 10),
			})
		}
	}
	return items, nil
}
