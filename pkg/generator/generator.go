// Package generator turns evaluator results into candidate workflow items,
// deduplicated against the items that are still open.
package generator

import (
	"sort"
	"time"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/google/uuid"
)

// Domain is a resource domain evaluated by its own cycle.
type Domain string

const (
	DomainSupply    Domain = "supply"
	DomainStaff     Domain = "staff"
	DomainEquipment Domain = "equipment"
	DomainBed       Domain = "bed"
)

// Domains lists all domains.
var Domains = []Domain{DomainSupply, DomainStaff, DomainEquipment, DomainBed}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	for _, candidate := range Domains {
		if candidate == d {
			return true
		}
	}

	return false
}

// ResourceKind returns the resource kind the domain evaluates.
func (d Domain) ResourceKind() models.ResourceKind {
	return models.ResourceKind(d)
}

// StaffingRule requires MinActiveStaff once a department's bed occupancy
// reaches MinOccupancyRate.
type StaffingRule struct {
	MinOccupancyRate float64 `mapstructure:"min_occupancy_rate"`
	MinActiveStaff   int     `mapstructure:"min_active_staff"`
}

// Config tunes suggestion generation.
type Config struct {
	// MaxOrderSize clamps reorder quantities. Zero disables the clamp.
	MaxOrderSize int `mapstructure:"max_order_size"`

	// TTL is the lifetime of reallocation and shift suggestions.
	TTL time.Duration `mapstructure:"ttl"`

	// ForcedTTL replaces TTL for items produced by a forced cycle.
	ForcedTTL time.Duration `mapstructure:"forced_ttl"`

	// CompatibleDepartments maps a department to the departments whose staff may cover it.
	CompatibleDepartments map[string][]string `mapstructure:"compatible_departments"`

	// StaffingRules lists the minimum active staff per department by occupancy.
	StaffingRules map[string][]StaffingRule `mapstructure:"staffing_rules"`

	// ShiftLookahead bounds how far back an off-going shift and how far ahead
	// the next shift may be to be proposed.
	ShiftLookahead time.Duration `mapstructure:"shift_lookahead"`

	// ShiftExtension is how long an off-going shift is extended.
	ShiftExtension time.Duration `mapstructure:"shift_extension"`
}

// DefaultConfig returns the generation settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxOrderSize:          500,
		TTL:                   30 * time.Minute,
		ForcedTTL:             10 * time.Minute,
		CompatibleDepartments: map[string][]string{},
		StaffingRules:         map[string][]StaffingRule{},
		ShiftLookahead:        2 * time.Hour,
		ShiftExtension:        2 * time.Hour,
	}
}

// Input is the evaluated state of one domain.
type Input struct {
	Domain  Domain
	Units   []models.ResourceUnit
	Results []evaluator.Result
	// Beds is used by the staff domain to compute department occupancy.
	Beds []models.ResourceUnit
}

// Options carry per-cycle settings.
type Options struct {
	Now         time.Time
	Forced      bool
	ForceReason string
}

// AlertKind classifies a generator alert.
type AlertKind string

// AlertCoverageGap is raised when a breach has no candidate to resolve it.
const AlertCoverageGap AlertKind = "coverage_gap"

// Alert reports a breach that produced no workflow item.
type Alert struct {
	Kind         AlertKind
	Domain       Domain
	UnitID       string
	DepartmentID string
	Priority     models.Priority
	Reason       string
}

// Plan is the outcome of a generation pass.
type Plan struct {
	Create []*models.WorkflowItem
	Update []*models.WorkflowItem
	Alerts []Alert
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Alerts) == 0
}

// Generator builds plans. It has no side effects.
type Generator struct {
	config     Config
	thresholds evaluator.Thresholds
	newID      func() string
}

// Option customises a Generator.
type Option func(*Generator)

// WithIDGenerator replaces the UUID source for new items.
func WithIDGenerator(newID func() string) Option {
	return func(g *Generator) {
		g.newID = newID
	}
}

// New creates a generator.
func New(config Config, thresholds evaluator.Thresholds, opts ...Option) *Generator {
	g := &Generator{
		config:     config,
		thresholds: thresholds,
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate produces the plan for one domain given its evaluation and the open items.
func (g *Generator) Generate(in Input, open []*models.WorkflowItem, opts Options) Plan {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	index := newOpenIndex(open)

	var plan Plan

	switch in.Domain {
	case DomainSupply:
		g.reorders(in, index, opts, &plan)
		g.transfers(in, index, opts, &plan)
	case DomainStaff:
		g.reallocations(in, index, opts, &plan)
		g.shiftAdjustments(in, index, opts, &plan)
	case DomainBed, DomainEquipment:
		g.assetRequests(in, open, opts, &plan)
	}

	models.SortByPriority(plan.Create)

	return plan
}

func (g *Generator) newItem(
	kind models.ItemKind,
	subjects []string,
	department string,
	priority models.Priority,
	reason string,
	payload models.Payload,
	opts Options,
) *models.WorkflowItem {
	origin := models.OriginCycle
	ttl := g.config.TTL

	if opts.Forced {
		origin = models.OriginForcedCycle
		priority = priority.Elevate()
		ttl = g.config.ForcedTTL

		if opts.ForceReason != "" {
			reason += " (forced: " + opts.ForceReason + ")"
		}
	}

	item := &models.WorkflowItem{
		ID:           g.newID(),
		Kind:         kind,
		SubjectRefs:  subjects,
		DepartmentID: department,
		Priority:     priority,
		Payload:      payload,
		Status:       models.ItemStatusPending,
		Reason:       reason,
		Origin:       origin,
		CreatedAt:    opts.Now,
		UpdatedAt:    opts.Now,
	}

	if kind.Expires() && ttl > 0 {
		expires := opts.Now.Add(ttl)
		item.ExpiresAt = &expires
	}

	return item
}

// reprioritize returns an updated copy of item when the re-evaluated priority differs.
// Items raised by a forced cycle are never lowered.
func reprioritize(item *models.WorkflowItem, computed models.Priority, opts Options) *models.WorkflowItem {
	if item.Status != models.ItemStatusPending {
		return nil
	}

	if opts.Forced {
		computed = computed.Elevate()
	}

	if computed == item.Priority {
		return nil
	}

	if item.Origin == models.OriginForcedCycle && computed.Rank() < item.Priority.Rank() {
		return nil
	}

	updated := item.Clone()
	updated.Priority = computed

	return updated
}

// openIndex answers "is there an active item of this kind for this unit".
type openIndex struct {
	bySubject map[string]map[models.ItemKind]*models.WorkflowItem
	onOrder   map[string]bool
	shifts    map[string]int
}

func newOpenIndex(open []*models.WorkflowItem) *openIndex {
	index := &openIndex{
		bySubject: make(map[string]map[models.ItemKind]*models.WorkflowItem),
		onOrder:   make(map[string]bool),
		shifts:    make(map[string]int),
	}

	for _, item := range open {
		if !item.Status.Active() {
			continue
		}

		for _, ref := range item.SubjectRefs {
			kinds, ok := index.bySubject[ref]
			if !ok {
				kinds = make(map[models.ItemKind]*models.WorkflowItem)
				index.bySubject[ref] = kinds
			}

			kinds[item.Kind] = item

			if item.Kind == models.ItemKindPurchaseOrder {
				index.onOrder[ref] = true
			}
		}

		if item.Kind == models.ItemKindShiftAdjustment && item.Payload.ShiftAdjustment != nil {
			index.shifts[item.Payload.ShiftAdjustment.DepartmentID]++
		}
	}

	return index
}

func (o *openIndex) active(unitID string, kind models.ItemKind) *models.WorkflowItem {
	return o.bySubject[unitID][kind]
}

func resultsByUnit(results []evaluator.Result) map[string]evaluator.Result {
	byUnit := make(map[string]evaluator.Result, len(results))
	for _, result := range results {
		byUnit[result.UnitID] = result
	}

	return byUnit
}

func sortedUnits(units []models.ResourceUnit) []models.ResourceUnit {
	sorted := append([]models.ResourceUnit(nil), units...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	return sorted
}
