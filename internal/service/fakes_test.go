package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── In-memory store ──────────────────────────────────────────────────────────
// One store backs every fake repository so cross-table reads (revenue by the
// client's channel, first visits per channel) see the same data. Rows are
// copied in and out so services cannot mutate stored state without Update.

type memStore struct {
	mu       sync.Mutex
	channels map[uuid.UUID]model.Channel
	leads    map[uuid.UUID]model.Lead
	clients  map[uuid.UUID]model.Client
	visits   map[uuid.UUID]model.Visit
	reserves map[string]model.Reserve
	metrics  map[string]model.ChannelMetric

	upserts int
	seq     int
	// failCount makes the aggregation reads of one channel fail
	failCount map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		channels:  make(map[uuid.UUID]model.Channel),
		leads:     make(map[uuid.UUID]model.Lead),
		clients:   make(map[uuid.UUID]model.Client),
		visits:    make(map[uuid.UUID]model.Visit),
		reserves:  make(map[string]model.Reserve),
		metrics:   make(map[string]model.ChannelMetric),
		failCount: make(map[uuid.UUID]bool),
	}
}

func metricKey(channelID uuid.UUID, date time.Time) string {
	return channelID.String() + "/" + date.Format("2006-01-02")
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// ── Channels ─────────────────────────────────────────────────────────────────

type fakeChannelRepo struct{ s *memStore }

func (r *fakeChannelRepo) Create(_ context.Context, c *model.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ch := range r.s.channels {
		if ch.Name == c.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.s.channels[c.ID] = *c
	return nil
}

func (r *fakeChannelRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ch, ok := r.s.channels[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &ch, nil
}

func (r *fakeChannelRepo) FindByName(_ context.Context, name string) (*model.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ch := range r.s.channels {
		if ch.Name == name {
			c := ch
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChannelRepo) List(_ context.Context, activeOnly bool) ([]model.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Channel
	for _, ch := range r.s.channels {
		if activeOnly && !ch.IsActive {
			continue
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeChannelRepo) Update(_ context.Context, c *model.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.channels[c.ID] = *c
	return nil
}

// ── Leads ────────────────────────────────────────────────────────────────────

type fakeLeadRepo struct{ s *memStore }

func (r *fakeLeadRepo) Create(_ context.Context, _ *gorm.DB, l *model.Lead) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.s.leads[l.ID] = *l
	return nil
}

func (r *fakeLeadRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &l, nil
}

func (r *fakeLeadRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.LeadStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.Status, l.UpdatedAt = status, at
	r.s.leads[id] = l
	return nil
}

func (r *fakeLeadRepo) FindEarliestByContact(_ context.Context, _ *gorm.DB, phone, email string) (*model.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	earliest := func(match func(model.Lead) bool) *model.Lead {
		var best *model.Lead
		for _, l := range r.s.leads {
			if !match(l) {
				continue
			}
			if best == nil || l.LeadDate.Before(best.LeadDate) {
				c := l
				best = &c
			}
		}
		return best
	}
	if phone != "" {
		if l := earliest(func(l model.Lead) bool { return l.Phone != nil && *l.Phone == phone }); l != nil {
			return l, nil
		}
	}
	if email != "" {
		if l := earliest(func(l model.Lead) bool { return l.Email != nil && *l.Email == email }); l != nil {
			return l, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeLeadRepo) LinkClient(_ context.Context, _ *gorm.DB, leadID, clientID uuid.UUID, status model.LeadStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[leadID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.ClientID, l.Status, l.UpdatedAt = &clientID, status, at
	r.s.leads[leadID] = l
	return nil
}

func (r *fakeLeadRepo) CountByChannel(_ context.Context, _ *gorm.DB, channelID uuid.UUID, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCount[channelID] {
		return 0, errors.New("connection reset")
	}
	var n int64
	for _, l := range r.s.leads {
		if l.ChannelID != nil && *l.ChannelID == channelID && inRange(l.LeadDate, from, to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeLeadRepo) CountRange(_ context.Context, channelID *uuid.UUID, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, l := range r.s.leads {
		if channelID != nil && (l.ChannelID == nil || *l.ChannelID != *channelID) {
			continue
		}
		if inRange(l.LeadDate, from, to) {
			n++
		}
	}
	return n, nil
}

// ── Clients ──────────────────────────────────────────────────────────────────

type fakeClientRepo struct{ s *memStore }

func (r *fakeClientRepo) Create(_ context.Context, _ *gorm.DB, c *model.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.Phone != nil {
		for _, o := range r.s.clients {
			if o.Phone != nil && *o.Phone == *c.Phone {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	// keep creation order stable for FindByEmail
	r.s.seq++
	c.CreatedAt = c.CreatedAt.Add(time.Duration(r.s.seq) * time.Nanosecond)
	r.s.clients[c.ID] = *c
	return nil
}

func (r *fakeClientRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *fakeClientRepo) FindByPhone(_ context.Context, _ *gorm.DB, phone string) (*model.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.clients {
		if c.Phone != nil && *c.Phone == phone {
			out := c
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeClientRepo) FindByEmail(_ context.Context, _ *gorm.DB, email string) (*model.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *model.Client
	for _, c := range r.s.clients {
		if c.Email != nil && *c.Email == email && (best == nil || c.CreatedAt.Before(best.CreatedAt)) {
			out := c
			best = &out
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (r *fakeClientRepo) LockByID(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Client, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeClientRepo) UpdateLedger(_ context.Context, _ *gorm.DB, c *model.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.clients[c.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.FirstVisitDate, stored.LastVisitDate = c.FirstVisitDate, c.LastVisitDate
	stored.TotalVisits, stored.TotalRevenue, stored.AverageCheck = c.TotalVisits, c.TotalRevenue, c.AverageCheck
	stored.Segment, stored.UpdatedAt = c.Segment, c.UpdatedAt
	r.s.clients[c.ID] = stored
	return nil
}

func (r *fakeClientRepo) FillContact(_ context.Context, _ *gorm.DB, id uuid.UUID, p repository.ContactPatch, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok || p.Empty() {
		return nil
	}
	if c.Name == nil && p.Name != nil {
		c.Name = p.Name
	}
	if c.Phone == nil && p.Phone != nil {
		c.Phone = p.Phone
	}
	if c.Email == nil && p.Email != nil {
		c.Email = p.Email
	}
	c.UpdatedAt = at
	r.s.clients[id] = c
	return nil
}

func (r *fakeClientRepo) SetFirstTouch(_ context.Context, _ *gorm.DB, id uuid.UUID, channelID, leadID *uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok || c.Attributed() {
		return false, nil
	}
	c.ChannelID, c.LeadID, c.UpdatedAt = channelID, leadID, at
	r.s.clients[id] = c
	return true, nil
}

func (r *fakeClientRepo) UpdateSegment(_ context.Context, snapshot *model.Client, segment model.Segment, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[snapshot.ID]
	if !ok || c.TotalVisits != snapshot.TotalVisits || !sameTime(c.LastVisitDate, snapshot.LastVisitDate) {
		return false, nil
	}
	c.Segment, c.UpdatedAt = segment, at
	r.s.clients[c.ID] = c
	return true, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (r *fakeClientRepo) CountFirstVisits(_ context.Context, _ *gorm.DB, channelID uuid.UUID, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, c := range r.s.clients {
		if c.ChannelID != nil && *c.ChannelID == channelID && c.FirstVisitDate != nil && inRange(*c.FirstVisitDate, from, to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeClientRepo) AverageRevenue(_ context.Context, _ *gorm.DB, channelID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum, n := decimal.Zero, 0
	for _, c := range r.s.clients {
		if c.ChannelID != nil && *c.ChannelID == channelID {
			sum = sum.Add(c.TotalRevenue)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}

func (r *fakeClientRepo) ListBatch(_ context.Context, afterID uuid.UUID, limit int) ([]model.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.Client
	for _, c := range r.s.clients {
		if c.ID.String() > afterID.String() {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeClientRepo) SegmentStats(_ context.Context) ([]repository.SegmentStat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	type acc struct {
		n               int64
		rev, visits, ch decimal.Decimal
	}
	by := map[model.Segment]*acc{}
	for _, c := range r.s.clients {
		a, ok := by[c.Segment]
		if !ok {
			a = &acc{}
			by[c.Segment] = a
		}
		a.n++
		a.rev = a.rev.Add(c.TotalRevenue)
		a.visits = a.visits.Add(decimal.NewFromInt(int64(c.TotalVisits)))
		a.ch = a.ch.Add(c.AverageCheck)
	}
	var out []repository.SegmentStat
	for seg, a := range by {
		n := decimal.NewFromInt(a.n)
		out = append(out, repository.SegmentStat{
			Segment:      seg,
			Clients:      a.n,
			TotalRevenue: a.rev,
			AvgVisits:    a.visits.Div(n),
			AvgCheck:     a.ch.Div(n),
		})
	}
	return out, nil
}

func (r *fakeClientRepo) DB() *gorm.DB { return nil }

// ── Visits ───────────────────────────────────────────────────────────────────

type fakeVisitRepo struct{ s *memStore }

func (r *fakeVisitRepo) Create(_ context.Context, _ *gorm.DB, v *model.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v.ReserveID != nil {
		for _, o := range r.s.visits {
			if o.ReserveID != nil && *o.ReserveID == *v.ReserveID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.s.visits[v.ID] = *v
	return nil
}

func (r *fakeVisitRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r *fakeVisitRepo) ExistsByReserveID(_ context.Context, _ *gorm.DB, reserveID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.visits {
		if v.ReserveID != nil && *v.ReserveID == reserveID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeVisitRepo) SumRevenueByChannel(_ context.Context, _ *gorm.DB, channelID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, v := range r.s.visits {
		c := r.s.clients[v.ClientID]
		if c.ChannelID != nil && *c.ChannelID == channelID && inRange(v.VisitDate, from, to) {
			sum = sum.Add(v.Amount)
		}
	}
	return sum, nil
}

func (r *fakeVisitRepo) Totals(_ context.Context, channelID *uuid.UUID, from, to time.Time) (repository.VisitTotals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := repository.VisitTotals{Revenue: decimal.Zero}
	for _, v := range r.s.visits {
		if !inRange(v.VisitDate, from, to) {
			continue
		}
		if channelID != nil {
			c := r.s.clients[v.ClientID]
			if c.ChannelID == nil || *c.ChannelID != *channelID {
				continue
			}
		}
		if v.Kind == model.VisitRegular {
			out.Visits++
		}
		out.Revenue = out.Revenue.Add(v.Amount)
	}
	return out, nil
}

func (r *fakeVisitRepo) ListByClient(_ context.Context, clientID uuid.UUID, limit int) ([]model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Visit
	for _, v := range r.s.visits {
		if v.ClientID == clientID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitDate.After(out[j].VisitDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Reserves ─────────────────────────────────────────────────────────────────

type fakeReserveRepo struct{ s *memStore }

func (r *fakeReserveRepo) FindByReserveID(_ context.Context, _ *gorm.DB, reserveID string) (*model.Reserve, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rs, ok := r.s.reserves[reserveID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rs, nil
}

func (r *fakeReserveRepo) Create(_ context.Context, _ *gorm.DB, rs *model.Reserve) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reserves[rs.ReserveID]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.s.reserves[rs.ReserveID] = *rs
	return nil
}

func (r *fakeReserveRepo) Update(_ context.Context, _ *gorm.DB, rs *model.Reserve) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reserves[rs.ReserveID] = *rs
	return nil
}

// ── Metrics ──────────────────────────────────────────────────────────────────

type fakeMetricRepo struct{ s *memStore }

func (r *fakeMetricRepo) Find(_ context.Context, _ *gorm.DB, channelID uuid.UUID, date time.Time) (*model.ChannelMetric, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.metrics[metricKey(channelID, date)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (r *fakeMetricRepo) Upsert(_ context.Context, _ *gorm.DB, m *model.ChannelMetric) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.s.metrics[metricKey(m.ChannelID, m.Date)] = *m
	r.s.upserts++
	return nil
}

func (r *fakeMetricRepo) ListRange(_ context.Context, channelID uuid.UUID, from, to time.Time) ([]model.ChannelMetric, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ChannelMetric
	for _, m := range r.s.metrics {
		if m.ChannelID == channelID && !m.Date.Before(from) && !m.Date.After(to) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeMetricRepo) DB() *gorm.DB { return nil }

// ── Fixture ──────────────────────────────────────────────────────────────────

// fixture wires every service over one memStore, in the business timezone
// Europe/Moscow (UTC+3, no DST).
type fixture struct {
	store    *memStore
	loc      *time.Location
	channels *fakeChannelRepo
	leads    *fakeLeadRepo
	clients  *fakeClientRepo
	visits   *fakeVisitRepo
	reserves *fakeReserveRepo
	metrics  *fakeMetricRepo

	resolver IdentityResolver
	ledger   LedgerService
	ingest   IngestService
	metricsS MetricsService
	clientS  ClientService
	reports  ReportService
}

func newFixture(now time.Time) *fixture {
	loc := time.FixedZone("MSK", 3*60*60)
	s := newMemStore()
	f := &fixture{
		store:    s,
		loc:      loc,
		channels: &fakeChannelRepo{s},
		leads:    &fakeLeadRepo{s},
		clients:  &fakeClientRepo{s},
		visits:   &fakeVisitRepo{s},
		reserves: &fakeReserveRepo{s},
		metrics:  &fakeMetricRepo{s},
	}
	clock := func() time.Time { return now }

	res := NewIdentityResolver(f.clients, f.leads).(*identityResolver)
	res.now = clock
	f.resolver = res

	led := NewLedgerService(f.clients, f.visits, model.DefaultSegmentPolicy()).(*ledgerService)
	led.now = clock
	f.ledger = led

	ing := NewIngestService(f.channels, f.leads, f.clients, f.visits, f.reserves, f.resolver, f.ledger, loc).(*ingestService)
	ing.now = clock
	f.ingest = ing

	ms := NewMetricsService(f.channels, f.leads, f.clients, f.visits, f.metrics, nil, MetricsOptions{Location: loc, Concurrency: 4}).(*metricsService)
	ms.now = clock
	f.metricsS = ms

	cs := NewClientService(f.clients, f.leads, f.visits, f.channels, f.resolver, f.ledger, loc).(*clientService)
	cs.now = clock
	f.clientS = cs

	f.reports = NewReportService(f.channels, f.leads, f.clients, f.visits, f.metrics, loc)
	return f
}

func (f *fixture) addChannel(name string, costPerMonth int64) uuid.UUID {
	ch := &model.Channel{
		ID:           uuid.New(),
		Name:         name,
		CostPerMonth: decimal.NewFromInt(costPerMonth),
		IsActive:     true,
	}
	if err := f.channels.Create(context.Background(), ch); err != nil {
		panic(err)
	}
	return ch.ID
}

func (f *fixture) allClients() []model.Client {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]model.Client, 0, len(f.store.clients))
	for _, c := range f.store.clients {
		out = append(out, c)
	}
	return out
}

func (f *fixture) allVisits() []model.Visit {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]model.Visit, 0, len(f.store.visits))
	for _, v := range f.store.visits {
		out = append(out, v)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
