package station

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/broadcast-engine/stationcast/internal/errs"
)

// BroadcastController is the slice of the Station Broadcasting Engine the
// catalog needs for cascade delete, declared locally to avoid a cyclic
// import between internal/station and internal/broadcast.
type BroadcastController interface {
	// StopIfActive stops the station's task if one is running; a no-op
	// otherwise. Called before a station is removed from the catalog.
	StopIfActive(stationID string) error
	// ClearState drops any in-memory playback state and recent-history ring
	// kept for stationID.
	ClearState(stationID string)
}

// Persister is the subset of Store the catalog needs, so tests can supply
// an in-memory stand-in without touching disk.
type Persister interface {
	Save(stations []*Station) error
}

// Catalog owns every Station record: creation, slug-enforced lookup,
// track-list replacement, and cascade delete.
type Catalog struct {
	mu       sync.RWMutex
	stations map[string]*Station
	slugs    map[string]string // slug -> station id

	store     Persister
	broadcast BroadcastController
}

// NewCatalog builds an empty Catalog. broadcast may be nil (e.g. during
// tests or before the broadcasting engine is wired up); in that case
// cascade delete skips the stop/clear step.
func NewCatalog(store Persister, broadcast BroadcastController) *Catalog {
	return &Catalog{
		stations:  make(map[string]*Station),
		slugs:     make(map[string]string),
		store:     store,
		broadcast: broadcast,
	}
}

// Restore replaces the catalog's contents with a previously persisted set,
// used at startup after loading from the Store.
func (c *Catalog) Restore(stations []*Station) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations = make(map[string]*Station, len(stations))
	c.slugs = make(map[string]string, len(stations))
	for _, s := range stations {
		c.stations[s.ID] = s
		c.slugs[s.Slug] = s.ID
	}
}

// Create validates and inserts a new station, enforcing slug format and
// uniqueness.
func (c *Catalog) Create(req CreateRequest) (*Station, error) {
	if req.Name == "" {
		return nil, errs.New(errs.KindValidation, "station name is required")
	}
	if !ValidSlug(req.Slug) {
		return nil, errs.New(errs.KindValidation, "slug must be lowercase alphanumeric and hyphen, 1-100 characters")
	}
	if req.SelectionMode == "" {
		req.SelectionMode = SelectionManual
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.slugs[req.Slug]; taken {
		return nil, errs.New(errs.KindSlugTaken, "slug already in use: "+req.Slug)
	}

	now := time.Now()
	s := &Station{
		ID:            uuid.NewString(),
		Slug:          req.Slug,
		Name:          req.Name,
		Description:   req.Description,
		Genres:        append([]string(nil), req.Genres...),
		TrackIDs:      append([]string(nil), req.TrackIDs...),
		CreatedBy:     req.CreatedBy,
		SelectionMode: req.SelectionMode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	c.stations[s.ID] = s
	c.slugs[s.Slug] = s.ID
	c.persistLocked()

	return s.clone(), nil
}

// Get returns the station with the given id.
func (c *Catalog) Get(id string) (*Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stations[id]
	return s.clone(), ok
}

// GetBySlug returns the station with the given slug.
func (c *Catalog) GetBySlug(slug string) (*Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.slugs[slug]
	if !ok {
		return nil, false
	}
	return c.stations[id].clone(), true
}

// List returns every station.
func (c *Catalog) List() []*Station {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Station, 0, len(c.stations))
	for _, s := range c.stations {
		out = append(out, s.clone())
	}
	return out
}

// Update applies a mutation to the station named by id. The mutation runs
// under the catalog lock and must not retain the pointer it receives.
func (c *Catalog) Update(id string, mutate func(*Station) error) (*Station, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stations[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no station with id "+id)
	}
	if err := mutate(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now()
	c.persistLocked()
	return s.clone(), nil
}

// ReplaceTracks atomically replaces a station's entire track-ID list,
// replacing the whole list atomically.
func (c *Catalog) ReplaceTracks(id string, trackIDs []string, mode SelectionMode) (*Station, error) {
	return c.Update(id, func(s *Station) error {
		s.TrackIDs = append([]string(nil), trackIDs...)
		if mode != "" {
			s.SelectionMode = mode
		}
		return nil
	})
}

// SetActive marks a station active or inactive. The station start and stop
// handlers call it after the registry starts or stops the station's task;
// no endpoint lets a client set the flag directly.
func (c *Catalog) SetActive(id string, active bool) error {
	_, err := c.Update(id, func(s *Station) error {
		s.Active = active
		return nil
	})
	return err
}

// Delete removes a station, cascading to stop its broadcasting task and
// clear its in-memory state.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	s, ok := c.stations[id]
	if !ok {
		c.mu.Unlock()
		return errs.New(errs.KindNotFound, "no station with id "+id)
	}
	delete(c.stations, id)
	delete(c.slugs, s.Slug)
	c.persistLocked()
	c.mu.Unlock()

	if c.broadcast != nil {
		if err := c.broadcast.StopIfActive(id); err != nil {
			return err
		}
		c.broadcast.ClearState(id)
	}
	return nil
}

func (c *Catalog) persistLocked() {
	if c.store == nil {
		return
	}
	snapshot := make([]*Station, 0, len(c.stations))
	for _, s := range c.stations {
		snapshot = append(snapshot, s.clone())
	}
	if err := c.store.Save(snapshot); err != nil {
		// Persistence failure must not roll back the in-memory mutation;
		// the next successful save will catch up.
		slog.Error("failed to persist station catalog", "error", err)
	}
}
