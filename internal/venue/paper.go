package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"crossarb/internal/domain"
)

// Paper is an in-process simulated venue. It serves random-walk order books,
// fills orders instantly at the requested price, charges taker fees and keeps
// balances, so the whole pipeline can run without touching a real exchange.
// It is also the venue used by tests.
type Paper struct {
	name string

	mu          sync.Mutex
	connected   bool
	closed      bool
	instruments map[string]domain.InstrumentMeta
	balances    map[string]float64
	orders      map[string]domain.Order
	mids        map[string]float64
	pushed      map[string]chan domain.OrderBookSnapshot
	done        chan struct{}

	rng       *rand.Rand
	tick      time.Duration
	priceBias float64
	resting   bool

	failCreate   map[domain.OrderSide]error
	failCancel   error
	failBalance  error
	fillOnCancel bool
}

// PaperOption configures a Paper venue.
type PaperOption func(*Paper)

// WithInstruments replaces the default instrument set.
func WithInstruments(metas map[string]domain.InstrumentMeta) PaperOption {
	return func(p *Paper) {
		p.instruments = make(map[string]domain.InstrumentMeta, len(metas))
		p.mids = make(map[string]float64, len(metas))
		for sym, m := range metas {
			p.instruments[sym] = m
		}
	}
}

// WithBalances replaces the default starting balances.
func WithBalances(bal map[string]float64) PaperOption {
	return func(p *Paper) {
		p.balances = make(map[string]float64, len(bal))
		for c, v := range bal {
			p.balances[c] = v
		}
	}
}

// WithTick enables the internal random-walk feed with the given interval.
// Without it WatchOrderBook only delivers snapshots pushed via PushBook.
func WithTick(d time.Duration) PaperOption {
	return func(p *Paper) { p.tick = d }
}

// WithSeed fixes the random source for reproducible runs.
func WithSeed(seed int64) PaperOption {
	return func(p *Paper) { p.rng = rand.New(rand.NewSource(seed)) }
}

// WithPriceBias shifts this venue's mid prices by a percentage, so two sim
// venues quote slightly different books and occasionally cross.
func WithPriceBias(pct float64) PaperOption {
	return func(p *Paper) { p.priceBias = pct }
}

// WithRestingLimitOrders makes limit orders rest on the book instead of
// filling instantly. Market orders still fill at once.
func WithRestingLimitOrders() PaperOption {
	return func(p *Paper) { p.resting = true }
}

// NewPaper creates a simulated venue with liquid BTC and ETH books and a
// funded account.
func NewPaper(name string, opts ...PaperOption) *Paper {
	p := &Paper{
		name: name,
		instruments: map[string]domain.InstrumentMeta{
			"BTC/USDT": {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", TakerFeePct: 0.1, MinAmount: 0.0001},
			"ETH/USDT": {Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT", TakerFeePct: 0.1, MinAmount: 0.001},
		},
		balances: map[string]float64{"USDT": 100000, "BTC": 1, "ETH": 10},
		orders:   make(map[string]domain.Order),
		mids:     map[string]float64{"BTC/USDT": 50000, "ETH/USDT": 3000},
		pushed:   make(map[string]chan domain.OrderBookSnapshot),
		done:     make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	p.failCreate = make(map[domain.OrderSide]error)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var (
	_ domain.VenueClient  = (*Paper)(nil)
	_ domain.BulkCanceler = (*Paper)(nil)
)

func (p *Paper) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("venue %s: connect: %w", p.name, domain.ErrVenueUnavailable)
	}
	p.connected = true
	return nil
}

func (p *Paper) LoadInstruments(ctx context.Context) (map[string]domain.InstrumentMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]domain.InstrumentMeta, len(p.instruments))
	for sym, m := range p.instruments {
		out[sym] = m
	}
	return out, nil
}

// PushBook hands a snapshot to the next WatchOrderBook call for the
// instrument, overwriting any snapshot not yet consumed.
func (p *Paper) PushBook(snap domain.OrderBookSnapshot) {
	ch := p.stream(snap.Instrument)
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (p *Paper) stream(instrument string) chan domain.OrderBookSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.pushed[instrument]
	if !ok {
		ch = make(chan domain.OrderBookSnapshot, 1)
		p.pushed[instrument] = ch
	}
	return ch
}

func (p *Paper) WatchOrderBook(ctx context.Context, instrument string) (domain.OrderBookSnapshot, error) {
	p.mu.Lock()
	if _, ok := p.instruments[instrument]; !ok {
		p.mu.Unlock()
		return domain.OrderBookSnapshot{}, fmt.Errorf("venue %s: watch %s: %w", p.name, instrument, domain.ErrInvalidOrder)
	}
	tick := p.tick
	p.mu.Unlock()

	ch := p.stream(instrument)
	if tick > 0 {
		select {
		case snap := <-ch:
			return snap, nil
		case <-time.After(tick):
			return p.nextBook(instrument), nil
		case <-p.done:
			return domain.OrderBookSnapshot{}, domain.ErrStreamClosed
		case <-ctx.Done():
			return domain.OrderBookSnapshot{}, ctx.Err()
		}
	}
	select {
	case snap := <-ch:
		return snap, nil
	case <-p.done:
		return domain.OrderBookSnapshot{}, domain.ErrStreamClosed
	case <-ctx.Done():
		return domain.OrderBookSnapshot{}, ctx.Err()
	}
}

// nextBook advances the instrument's random walk and builds a five-level
// snapshot around the new mid.
func (p *Paper) nextBook(instrument string) domain.OrderBookSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	mid := p.mids[instrument]
	if mid == 0 {
		mid = 100
	}
	mid *= 1 + (p.rng.Float64()-0.5)*0.002
	p.mids[instrument] = mid

	quoted := mid * (1 + p.priceBias/100)
	spread := quoted * 0.0005
	snap := domain.OrderBookSnapshot{
		Venue:      p.name,
		Instrument: instrument,
		CapturedAt: time.Now().UTC(),
	}
	for i := 0; i < 5; i++ {
		step := spread * float64(i+1)
		size := (p.rng.Float64() + 0.5) * 2 / float64(i+1)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: quoted - step, Size: size})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: quoted + step, Size: size})
	}
	return snap
}

// FailNextCreate makes the next CreateOrder for the side fail with err.
func (p *Paper) FailNextCreate(side domain.OrderSide, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCreate[side] = err
}

// FailNextCancel makes the next CancelOrder fail with err.
func (p *Paper) FailNextCancel(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCancel = err
}

// FillOnCancel makes CancelOrder report the order as already filled instead
// of cancelling it.
func (p *Paper) FillOnCancel(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fillOnCancel = v
}

func (p *Paper) CreateOrder(ctx context.Context, instrument string, side domain.OrderSide, amount, price float64) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failCreate[side]; err != nil {
		delete(p.failCreate, side)
		return domain.Order{}, fmt.Errorf("venue %s: create %s: %w", p.name, side, err)
	}

	meta, ok := p.instruments[instrument]
	if !ok {
		return domain.Order{}, fmt.Errorf("venue %s: create: unknown instrument %s: %w", p.name, instrument, domain.ErrInvalidOrder)
	}
	if amount < meta.MinAmount {
		return domain.Order{}, fmt.Errorf("venue %s: create: amount %g below minimum %g: %w", p.name, amount, meta.MinAmount, domain.ErrInvalidOrder)
	}
	market := price <= 0
	if market {
		price = p.mids[instrument]
		if price == 0 {
			price = 100
		}
	}

	if p.resting && !market {
		now := time.Now().UTC()
		order := domain.Order{
			ID:         uuid.NewString(),
			Venue:      p.name,
			Instrument: instrument,
			Side:       side,
			Amount:     amount,
			Price:      price,
			Status:     domain.OrderStatusOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		p.orders[order.ID] = order
		return order, nil
	}

	cost := amount * price
	fee := cost * meta.TakerFeePct / 100
	switch side {
	case domain.OrderSideBuy:
		if p.balances[meta.Quote] < cost+fee {
			return domain.Order{}, fmt.Errorf("venue %s: create: insufficient %s: %w", p.name, meta.Quote, domain.ErrOrderRejected)
		}
		p.balances[meta.Quote] -= cost + fee
		p.balances[meta.Base] += amount
	case domain.OrderSideSell:
		if p.balances[meta.Base] < amount {
			return domain.Order{}, fmt.Errorf("venue %s: create: insufficient %s: %w", p.name, meta.Base, domain.ErrOrderRejected)
		}
		p.balances[meta.Base] -= amount
		p.balances[meta.Quote] += cost - fee
	default:
		return domain.Order{}, fmt.Errorf("venue %s: create: side %q: %w", p.name, side, domain.ErrInvalidOrder)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:         uuid.NewString(),
		Venue:      p.name,
		Instrument: instrument,
		Side:       side,
		Amount:     amount,
		Price:      price,
		Status:     domain.OrderStatusFilled,
		Filled:     amount,
		AvgPrice:   price,
		Cost:       cost,
		FeePaid:    fee,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.orders[order.ID] = order
	return order, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID, instrument string) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failCancel; err != nil {
		p.failCancel = nil
		return domain.Order{}, fmt.Errorf("venue %s: cancel %s: %w", p.name, orderID, err)
	}
	order, ok := p.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("venue %s: cancel %s: %w", p.name, orderID, domain.ErrNotFound)
	}
	if order.Status == domain.OrderStatusFilled || p.fillOnCancel {
		order.Status = domain.OrderStatusFilled
		order.Filled = order.Amount
		order.UpdatedAt = time.Now().UTC()
		p.orders[orderID] = order
		return order, nil
	}
	if !order.IsTerminal() {
		order.Status = domain.OrderStatusCanceled
		order.UpdatedAt = time.Now().UTC()
		p.orders[orderID] = order
	}
	return order, nil
}

func (p *Paper) FetchOrder(ctx context.Context, orderID, instrument string) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("venue %s: fetch %s: %w", p.name, orderID, domain.ErrNotFound)
	}
	return order, nil
}

// FillOrder settles a resting order as fully filled at its limit price.
func (p *Paper) FillOrder(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("venue %s: fill %s: %w", p.name, orderID, domain.ErrNotFound)
	}
	if order.IsTerminal() {
		return fmt.Errorf("venue %s: fill %s: order already terminal: %w", p.name, orderID, domain.ErrInvalidOrder)
	}
	meta := p.instruments[order.Instrument]

	order.Filled = order.Amount
	order.AvgPrice = order.Price
	order.Cost = order.Amount * order.Price
	order.FeePaid = order.Cost * meta.TakerFeePct / 100
	order.Status = domain.OrderStatusFilled
	order.UpdatedAt = time.Now().UTC()

	switch order.Side {
	case domain.OrderSideBuy:
		p.balances[meta.Quote] -= order.Cost + order.FeePaid
		p.balances[meta.Base] += order.Amount
	case domain.OrderSideSell:
		p.balances[meta.Base] -= order.Amount
		p.balances[meta.Quote] += order.Cost - order.FeePaid
	}
	p.orders[orderID] = order
	return nil
}

// FailNextBalance makes the next FetchBalance fail with err.
func (p *Paper) FailNextBalance(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failBalance = err
}

func (p *Paper) FetchBalance(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failBalance; err != nil {
		p.failBalance = nil
		return nil, fmt.Errorf("venue %s: balance: %w", p.name, err)
	}
	out := make(map[string]float64, len(p.balances))
	for c, v := range p.balances {
		out[c] = v
	}
	return out, nil
}

func (p *Paper) CancelAllOrders(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	for id, o := range p.orders {
		if !o.IsTerminal() {
			o.Status = domain.OrderStatusCanceled
			o.UpdatedAt = now
			p.orders[id] = o
		}
	}
	return nil
}

func (p *Paper) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}
