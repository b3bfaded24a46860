package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"trolley-pm/internal/model"
	"trolley-pm/internal/parse"
)

// DefaultIntervalDays is the PM interval used when none is configured.
const DefaultIntervalDays = 90

// Store defines the interface for all record-store operations.
type Store interface {
	Register(ctx context.Context, trolleyID string, registeredOn time.Time) (*TrolleyIdentity, error)
	Remap(ctx context.Context, in RemapInput) error
	Resolve(ctx context.Context, id string) (string, error)
	Identity(ctx context.Context, id string) (*TrolleyIdentity, error)
	Lineages(ctx context.Context) ([]model.Trolley, error)

	AppendMaintenance(ctx context.Context, in MaintenanceInput) (*model.MaintenanceRecord, error)
	AppendFailure(ctx context.Context, in FailureInput) (*model.FailureRecord, *model.MaintenanceRecord, error)
	AppendScrap(ctx context.Context, in ScrapInput) (*model.ScrapRecord, error)

	Query(ctx context.Context, lineageKey string, kind RecordKind, r DateRange) ([]Record, error)
	History(ctx context.Context, kind RecordKind, r DateRange, limit int) ([]Record, error)
	Snapshot(ctx context.Context, lineageKey string) (*LineageSnapshot, error)
	Snapshots(ctx context.Context) ([]LineageSnapshot, error)
	CostEntries(ctx context.Context, lineageKey string, r DateRange) ([]CostEntry, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db           *gorm.DB
	intervalDays int
}

// NewGormStore creates a new GORM-backed store. intervalDays <= 0 selects
// DefaultIntervalDays.
func NewGormStore(db *gorm.DB, intervalDays int) Store {
	if intervalDays <= 0 {
		intervalDays = DefaultIntervalDays
	}
	return &gormStore{db: db, intervalDays: intervalDays}
}

// DB exposes the underlying handle for collaborators outside the core.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Register creates a new lineage for trolleyID.
func (s *gormStore) Register(ctx context.Context, trolleyID string, registeredOn time.Time) (*TrolleyIdentity, error) {
	id, err := parse.TrolleyID(trolleyID)
	if err != nil {
		return nil, validationf("%v", err)
	}
	day, err := eventDay("registration date", registeredOn)
	if err != nil {
		return nil, err
	}

	var identity *TrolleyIdentity
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, found, err := findAlias(tx, id); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: %q is already registered", ErrDuplicateIdentity, id)
		}

		trolley := model.Trolley{
			LineageKey:   uuid.NewString(),
			CurrentID:    id,
			RegisteredOn: day,
		}
		if err := tx.Create(&trolley).Error; err != nil {
			return fmt.Errorf("failed to create trolley %q: %w", id, err)
		}
		if err := tx.Create(&model.TrolleyAlias{ID: id, LineageKey: trolley.LineageKey}).Error; err != nil {
			return fmt.Errorf("failed to create alias %q: %w", id, err)
		}
		entry := model.TrolleyRemap{
			LineageKey:    trolley.LineageKey,
			Action:        model.RegistryActionAdd,
			NewID:         id,
			EffectiveDate: day,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to record registration of %q: %w", id, err)
		}

		identity = &TrolleyIdentity{
			LineageKey:   trolley.LineageKey,
			CurrentID:    id,
			RegisteredOn: day,
			Aliases:      []string{id},
			History:      []model.TrolleyRemap{entry},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// Remap moves a lineage from its current id to a new one. The old id stays a
// resolvable alias.
func (s *gormStore) Remap(ctx context.Context, in RemapInput) error {
	oldID, err := parse.TrolleyID(in.OldID)
	if err != nil {
		return validationf("old id: %v", err)
	}
	newID, err := parse.TrolleyID(in.NewID)
	if err != nil {
		return validationf("new id: %v", err)
	}
	day, err := eventDay("effective date", in.EffectiveDate)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alias, found, err := findAlias(tx, oldID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrUnknownIdentity, oldID)
		}
		if _, found, err := findAlias(tx, newID); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: %q is already in use", ErrDuplicateIdentity, newID)
		}

		var trolley model.Trolley
		if err := tx.Where("lineage_key = ?", alias.LineageKey).Take(&trolley).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invariantf("alias %q points at missing lineage %s", oldID, alias.LineageKey)
			}
			return fmt.Errorf("failed to load lineage for %q: %w", oldID, err)
		}
		if trolley.CurrentID != oldID {
			return validationf("%q was already remapped; the current id is %q", oldID, trolley.CurrentID)
		}

		if err := tx.Model(&trolley).Update("current_id", newID).Error; err != nil {
			return fmt.Errorf("failed to update current id of %s: %w", trolley.LineageKey, err)
		}
		if err := tx.Create(&model.TrolleyAlias{ID: newID, LineageKey: trolley.LineageKey}).Error; err != nil {
			return fmt.Errorf("failed to create alias %q: %w", newID, err)
		}
		old := oldID
		entry := model.TrolleyRemap{
			LineageKey:    trolley.LineageKey,
			Action:        model.RegistryActionModify,
			OldID:         &old,
			NewID:         newID,
			EffectiveDate: day,
			Reason:        in.Reason,
			Note:          in.Note,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to record remap %q -> %q: %w", oldID, newID, err)
		}
		return nil
	})
}

// Resolve maps any current or historical id to its lineage key.
func (s *gormStore) Resolve(ctx context.Context, id string) (string, error) {
	normalized, err := parse.TrolleyID(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownIdentity, id)
	}
	alias, found, err := findAlias(s.db.WithContext(ctx), normalized)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %q", ErrUnknownIdentity, normalized)
	}
	return alias.LineageKey, nil
}

// Identity returns the lineage that id resolves to with its remap history.
func (s *gormStore) Identity(ctx context.Context, id string) (*TrolleyIdentity, error) {
	key, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	var identity *TrolleyIdentity
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trolley, err := loadTrolley(tx, key)
		if err != nil {
			return err
		}
		var aliases []model.TrolleyAlias
		if err := tx.Where("lineage_key = ?", key).Order("created_at ASC").Find(&aliases).Error; err != nil {
			return fmt.Errorf("failed to load aliases of %s: %w", key, err)
		}
		// Chain order is insertion order; effective dates may be backdated.
		var remaps []model.TrolleyRemap
		if err := tx.Where("lineage_key = ?", key).Order("id ASC").Find(&remaps).Error; err != nil {
			return fmt.Errorf("failed to load remap chain of %s: %w", key, err)
		}

		identity = &TrolleyIdentity{
			LineageKey:   trolley.LineageKey,
			CurrentID:    trolley.CurrentID,
			RegisteredOn: trolley.RegisteredOn,
			History:      remaps,
		}
		for _, r := range remaps {
			identity.Aliases = append(identity.Aliases, r.NewID)
		}
		if len(identity.Aliases) != len(aliases) {
			return invariantf("lineage %s has %d aliases but %d chain entries", key, len(aliases), len(remaps))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// Lineages lists every registered trolley ordered by current id.
func (s *gormStore) Lineages(ctx context.Context) ([]model.Trolley, error) {
	var trolleys []model.Trolley
	if err := s.db.WithContext(ctx).Order("current_id ASC").Find(&trolleys).Error; err != nil {
		return nil, fmt.Errorf("failed to list trolleys: %w", err)
	}
	return trolleys, nil
}

// AppendMaintenance records one PM action dated in.PerformedDate.
func (s *gormStore) AppendMaintenance(ctx context.Context, in MaintenanceInput) (*model.MaintenanceRecord, error) {
	day, err := eventDay("performed date", in.PerformedDate)
	if err != nil {
		return nil, err
	}
	due, err := s.dueDay(day)
	if err != nil {
		return nil, err
	}
	cost, err := optionalCost("cost", in.Cost)
	if err != nil {
		return nil, err
	}

	var record model.MaintenanceRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, key, err := resolveActive(tx, in.TrolleyID)
		if err != nil {
			return err
		}
		record = model.MaintenanceRecord{
			LineageKey:    key,
			TrolleyID:     id,
			PerformedDate: day,
			NextDueDate:   due,
			Technician:    in.Technician,
			Cost:          cost,
			Notes:         in.Notes,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to append maintenance for %q: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// AppendFailure records a failure and its linked maintenance record in one
// transaction.
func (s *gormStore) AppendFailure(ctx context.Context, in FailureInput) (*model.FailureRecord, *model.MaintenanceRecord, error) {
	day, err := eventDay("reported date", in.ReportedDate)
	if err != nil {
		return nil, nil, err
	}
	due, err := s.dueDay(day)
	if err != nil {
		return nil, nil, err
	}
	if !in.Category.Valid() {
		return nil, nil, validationf("invalid failure category %q", in.Category)
	}
	repairCost, err := optionalCost("repair cost", in.RepairCost)
	if err != nil {
		return nil, nil, err
	}

	var failure model.FailureRecord
	var linked model.MaintenanceRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, key, err := resolveActive(tx, in.TrolleyID)
		if err != nil {
			return err
		}
		failure = model.FailureRecord{
			LineageKey:   key,
			TrolleyID:    id,
			ReportedDate: day,
			Category:     in.Category,
			Technician:   in.Technician,
			RepairCost:   repairCost,
			Notes:        in.Notes,
		}
		if err := tx.Create(&failure).Error; err != nil {
			return fmt.Errorf("failed to append failure for %q: %w", id, err)
		}

		failureID := failure.ID
		linked = model.MaintenanceRecord{
			LineageKey:    key,
			TrolleyID:     id,
			PerformedDate: day,
			NextDueDate:   due,
			Technician:    in.Technician,
			Notes:         in.Notes,
			FailureID:     &failureID,
		}
		if err := tx.Create(&linked).Error; err != nil {
			return fmt.Errorf("failed to append linked maintenance for failure %d: %w", failure.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &failure, &linked, nil
}

// AppendScrap marks a lineage as scrapped. A lineage is scrapped at most once.
func (s *gormStore) AppendScrap(ctx context.Context, in ScrapInput) (*model.ScrapRecord, error) {
	day, err := eventDay("scrap date", in.ScrapDate)
	if err != nil {
		return nil, err
	}

	var record model.ScrapRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := parse.TrolleyID(in.TrolleyID)
		if err != nil {
			return validationf("%v", err)
		}
		alias, found, err := findAlias(tx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrUnknownIdentity, id)
		}
		if n, err := countScraps(tx, alias.LineageKey); err != nil {
			return err
		} else if n > 0 {
			return invariantf("trolley %q is already scrapped", id)
		}

		record = model.ScrapRecord{
			LineageKey: alias.LineageKey,
			TrolleyID:  id,
			ScrapDate:  day,
			Reason:     in.Reason,
			RecordedBy: in.RecordedBy,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to append scrap for %q: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Query returns the records of one kind for a lineage, ordered by event date.
func (s *gormStore) Query(ctx context.Context, lineageKey string, kind RecordKind, r DateRange) ([]Record, error) {
	if _, err := ParseRecordKind(string(kind)); err != nil {
		return nil, err
	}
	rng, err := r.Normalize()
	if err != nil {
		return nil, err
	}

	var out []Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadTrolley(tx, lineageKey); err != nil {
			return err
		}
		out, err = loadRecords(tx, lineageKey, kind, rng)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the records of one kind across the fleet, newest first. A
// positive limit caps the result.
func (s *gormStore) History(ctx context.Context, kind RecordKind, r DateRange, limit int) ([]Record, error) {
	if _, err := ParseRecordKind(string(kind)); err != nil {
		return nil, err
	}
	rng, err := r.Normalize()
	if err != nil {
		return nil, err
	}

	var out []Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out, err = loadRecords(tx, "", kind, rng)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Snapshot reads every record of one lineage inside a single transaction.
func (s *gormStore) Snapshot(ctx context.Context, lineageKey string) (*LineageSnapshot, error) {
	var snap *LineageSnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trolley, err := loadTrolley(tx, lineageKey)
		if err != nil {
			return err
		}
		snap = &LineageSnapshot{Trolley: *trolley}
		if snap.Maintenance, err = loadMaintenance(tx, lineageKey, DateRange{}); err != nil {
			return err
		}
		if snap.Failures, err = loadFailures(tx, lineageKey, DateRange{}); err != nil {
			return err
		}
		if snap.Remaps, err = loadRemaps(tx, lineageKey, DateRange{}); err != nil {
			return err
		}
		scraps, err := loadScraps(tx, lineageKey, DateRange{})
		if err != nil {
			return err
		}
		if len(scraps) > 1 {
			return invariantf("lineage %s has %d scrap records", lineageKey, len(scraps))
		}
		if len(scraps) == 1 {
			snap.Scrap = &scraps[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Snapshots reads every lineage inside a single transaction, ordered by
// current id.
func (s *gormStore) Snapshots(ctx context.Context) ([]LineageSnapshot, error) {
	var out []LineageSnapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trolleys []model.Trolley
		if err := tx.Order("current_id ASC").Find(&trolleys).Error; err != nil {
			return fmt.Errorf("failed to list trolleys: %w", err)
		}
		var maintenance []model.MaintenanceRecord
		if err := tx.Order("performed_date ASC, id ASC").Find(&maintenance).Error; err != nil {
			return fmt.Errorf("failed to load maintenance records: %w", err)
		}
		var failures []model.FailureRecord
		if err := tx.Order("reported_date ASC, id ASC").Find(&failures).Error; err != nil {
			return fmt.Errorf("failed to load failure records: %w", err)
		}
		var scraps []model.ScrapRecord
		if err := tx.Order("scrap_date ASC, id ASC").Find(&scraps).Error; err != nil {
			return fmt.Errorf("failed to load scrap records: %w", err)
		}
		var remaps []model.TrolleyRemap
		if err := tx.Order("effective_date ASC, id ASC").Find(&remaps).Error; err != nil {
			return fmt.Errorf("failed to load remap history: %w", err)
		}

		index := make(map[string]int, len(trolleys))
		out = make([]LineageSnapshot, len(trolleys))
		for i, t := range trolleys {
			index[t.LineageKey] = i
			out[i].Trolley = t
		}
		for _, m := range maintenance {
			if i, ok := index[m.LineageKey]; ok {
				out[i].Maintenance = append(out[i].Maintenance, m)
			}
		}
		for _, f := range failures {
			if i, ok := index[f.LineageKey]; ok {
				out[i].Failures = append(out[i].Failures, f)
			}
		}
		for _, rm := range remaps {
			if i, ok := index[rm.LineageKey]; ok {
				out[i].Remaps = append(out[i].Remaps, rm)
			}
		}
		for j := range scraps {
			i, ok := index[scraps[j].LineageKey]
			if !ok {
				continue
			}
			if out[i].Scrap != nil {
				return invariantf("lineage %s has more than one scrap record", scraps[j].LineageKey)
			}
			out[i].Scrap = &scraps[j]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CostEntries lists every maintenance cost and repair cost with an event date
// inside r. An empty lineageKey selects all trolleys.
func (s *gormStore) CostEntries(ctx context.Context, lineageKey string, r DateRange) ([]CostEntry, error) {
	rng, err := r.Normalize()
	if err != nil {
		return nil, err
	}

	var entries []CostEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lineageKey != "" {
			if _, err := loadTrolley(tx, lineageKey); err != nil {
				return err
			}
		}

		mq := withRange(tx.Model(&model.MaintenanceRecord{}), "performed_date", rng).Where("cost IS NOT NULL")
		fq := withRange(tx.Model(&model.FailureRecord{}), "reported_date", rng).Where("repair_cost IS NOT NULL")
		if lineageKey != "" {
			mq = mq.Where("lineage_key = ?", lineageKey)
			fq = fq.Where("lineage_key = ?", lineageKey)
		}

		var maintenance []model.MaintenanceRecord
		if err := mq.Order("performed_date ASC, id ASC").Find(&maintenance).Error; err != nil {
			return fmt.Errorf("failed to load maintenance costs: %w", err)
		}
		var failures []model.FailureRecord
		if err := fq.Order("reported_date ASC, id ASC").Find(&failures).Error; err != nil {
			return fmt.Errorf("failed to load repair costs: %w", err)
		}

		for _, m := range maintenance {
			if m.Cost.Valid {
				entries = append(entries, CostEntry{
					Kind: KindMaintenance, RecordID: m.ID, LineageKey: m.LineageKey,
					TrolleyID: m.TrolleyID, Date: m.PerformedDate, Amount: m.Cost.Decimal,
				})
			}
		}
		for _, f := range failures {
			if f.RepairCost.Valid {
				entries = append(entries, CostEntry{
					Kind: KindFailure, RecordID: f.ID, LineageKey: f.LineageKey,
					TrolleyID: f.TrolleyID, Date: f.ReportedDate, Amount: f.RepairCost.Decimal,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

// --- helpers ---

func eventDay(field string, t time.Time) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, validationf("%s is required", field)
	}
	day := parse.Day(t)
	if !parse.InRange(day) {
		return time.Time{}, validationf("%s %s is outside the supported range", field, day.Format("2006-01-02"))
	}
	return day, nil
}

// dueDay is the next due date of a PM performed on day. It must stay inside
// the supported calendar range so it survives storage and encoding.
func (s *gormStore) dueDay(day time.Time) (time.Time, error) {
	due := parse.AddDays(day, s.intervalDays)
	if !parse.InRange(due) {
		return time.Time{}, validationf("next due date %s is outside the supported range", due.Format("2006-01-02"))
	}
	return due, nil
}

func optionalCost(field string, amount *decimal.Decimal) (decimal.NullDecimal, error) {
	if amount == nil {
		return decimal.NullDecimal{}, nil
	}
	if amount.IsNegative() {
		return decimal.NullDecimal{}, validationf("%s must not be negative, got %s", field, amount.String())
	}
	return decimal.NewNullDecimal(*amount), nil
}

func findAlias(tx *gorm.DB, id string) (model.TrolleyAlias, bool, error) {
	var alias model.TrolleyAlias
	err := tx.Where("id = ?", id).Take(&alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TrolleyAlias{}, false, nil
	}
	if err != nil {
		return model.TrolleyAlias{}, false, fmt.Errorf("failed to look up trolley id %q: %w", id, err)
	}
	return alias, true, nil
}

// resolveActive resolves raw to a lineage that is not scrapped.
func resolveActive(tx *gorm.DB, raw string) (string, string, error) {
	id, err := parse.TrolleyID(raw)
	if err != nil {
		return "", "", validationf("%v", err)
	}
	alias, found, err := findAlias(tx, id)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownIdentity, id)
	}
	n, err := countScraps(tx, alias.LineageKey)
	if err != nil {
		return "", "", err
	}
	if n > 0 {
		return "", "", validationf("trolley %q is scrapped", id)
	}
	return id, alias.LineageKey, nil
}

func countScraps(tx *gorm.DB, lineageKey string) (int64, error) {
	var n int64
	if err := tx.Model(&model.ScrapRecord{}).Where("lineage_key = ?", lineageKey).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to check scrap state of %s: %w", lineageKey, err)
	}
	return n, nil
}

func loadTrolley(tx *gorm.DB, lineageKey string) (*model.Trolley, error) {
	var trolley model.Trolley
	err := tx.Where("lineage_key = ?", lineageKey).Take(&trolley).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: lineage %q", ErrUnknownIdentity, lineageKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage %s: %w", lineageKey, err)
	}
	return &trolley, nil
}

func withRange(q *gorm.DB, column string, r DateRange) *gorm.DB {
	if !r.Start.IsZero() {
		q = q.Where(column+" >= ?", r.Start)
	}
	if !r.End.IsZero() {
		q = q.Where(column+" < ?", r.End)
	}
	return q
}

// forLineage narrows tx to one lineage; an empty key keeps every lineage.
func forLineage(tx *gorm.DB, lineageKey string) *gorm.DB {
	if lineageKey == "" {
		return tx
	}
	return tx.Where("lineage_key = ?", lineageKey)
}

func loadRecords(tx *gorm.DB, lineageKey string, kind RecordKind, rng DateRange) ([]Record, error) {
	out := []Record{}
	switch kind {
	case KindMaintenance:
		rows, err := loadMaintenance(tx, lineageKey, rng)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			m := rows[i]
			out = append(out, Record{Kind: kind, ID: m.ID, Date: m.PerformedDate, TrolleyID: m.TrolleyID, Maintenance: &m})
		}
	case KindFailure:
		rows, err := loadFailures(tx, lineageKey, rng)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			f := rows[i]
			out = append(out, Record{Kind: kind, ID: f.ID, Date: f.ReportedDate, TrolleyID: f.TrolleyID, Failure: &f})
		}
	case KindScrap:
		rows, err := loadScraps(tx, lineageKey, rng)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			sc := rows[i]
			out = append(out, Record{Kind: kind, ID: sc.ID, Date: sc.ScrapDate, TrolleyID: sc.TrolleyID, Scrap: &sc})
		}
	case KindRemap:
		rows, err := loadRemaps(tx, lineageKey, rng)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			rm := rows[i]
			out = append(out, Record{Kind: kind, ID: rm.ID, Date: rm.EffectiveDate, TrolleyID: rm.NewID, Remap: &rm})
		}
	}
	return out, nil
}

func loadMaintenance(tx *gorm.DB, lineageKey string, r DateRange) ([]model.MaintenanceRecord, error) {
	var rows []model.MaintenanceRecord
	q := withRange(forLineage(tx, lineageKey), "performed_date", r)
	if err := q.Order("performed_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load maintenance records of %s: %w", lineageKey, err)
	}
	return rows, nil
}

func loadFailures(tx *gorm.DB, lineageKey string, r DateRange) ([]model.FailureRecord, error) {
	var rows []model.FailureRecord
	q := withRange(forLineage(tx, lineageKey), "reported_date", r)
	if err := q.Order("reported_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load failure records of %s: %w", lineageKey, err)
	}
	return rows, nil
}

func loadScraps(tx *gorm.DB, lineageKey string, r DateRange) ([]model.ScrapRecord, error) {
	var rows []model.ScrapRecord
	q := withRange(forLineage(tx, lineageKey), "scrap_date", r)
	if err := q.Order("scrap_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load scrap records of %s: %w", lineageKey, err)
	}
	return rows, nil
}

func loadRemaps(tx *gorm.DB, lineageKey string, r DateRange) ([]model.TrolleyRemap, error) {
	var rows []model.TrolleyRemap
	q := withRange(forLineage(tx, lineageKey), "effective_date", r)
	if err := q.Order("effective_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load remap history of %s: %w", lineageKey, err)
	}
	return rows, nil
}
