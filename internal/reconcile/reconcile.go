// Package reconcile merges an imported channel batch into the persisted
// catalog without losing channel identity.
//
// An incoming entry is matched against existing rows of the same playlist in
// three tiers: provider-native id first, then guide (tvg) id, then the
// name+group pair. A matched channel keeps its canonical id forever; only
// its mutable fields are rewritten. Channels absent from the batch are
// soft-deleted and later hard-removed by Purge.
package reconcile

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/logging"
	"github.com/snapetech/iptv-catalog/internal/store"
)

// DefaultPurgeAfter is how long a soft-deleted channel lingers before Purge
// removes it for good.
const DefaultPurgeAfter = 30 * 24 * time.Hour

// Result counts what one import did to the catalog.
type Result struct {
	Added       int
	Updated     int
	SoftDeleted int
	Unchanged   int
}

type Reconciler struct {
	store *store.Store
	log   zerolog.Logger
}

func New(st *store.Store) *Reconciler {
	return &Reconciler{store: st, log: logging.For("reconcile")}
}

type index struct {
	byProvider  map[string]*catalog.Channel
	byTvg       map[string]*catalog.Channel
	byNameGroup map[string]*catalog.Channel
}

func nameGroupKey(name, group string) string {
	return name + "\x00" + group
}

func buildIndex(existing []*catalog.Channel) index {
	ix := index{
		byProvider:  make(map[string]*catalog.Channel),
		byTvg:       make(map[string]*catalog.Channel),
		byNameGroup: make(map[string]*catalog.Channel),
	}
	for _, ch := range existing {
		ix.add(ch)
	}
	return ix
}

func (ix index) add(ch *catalog.Channel) {
	if ch.ProviderID != "" {
		ix.byProvider[ch.ProviderID] = ch
	}
	if ch.TvgID != "" {
		ix.byTvg[ch.TvgID] = ch
	}
	ix.byNameGroup[nameGroupKey(ch.Name, ch.Group)] = ch
}

func (ix index) match(in catalog.Channel) *catalog.Channel {
	if in.ProviderID != "" {
		if ch, ok := ix.byProvider[in.ProviderID]; ok {
			return ch
		}
	}
	if in.TvgID != "" {
		if ch, ok := ix.byTvg[in.TvgID]; ok {
			return ch
		}
	}
	if ch, ok := ix.byNameGroup[nameGroupKey(in.Name, in.Group)]; ok {
		return ch
	}
	return nil
}

// apply copies the batch entry onto the matched channel. Non-empty incoming
// match keys overwrite; empty ones keep what is already known. A matched
// soft-deleted channel is revived. Reports whether anything changed.
func apply(ex *catalog.Channel, in catalog.Channel) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&ex.ProviderID, in.ProviderID)
	set(&ex.TvgID, in.TvgID)
	if ex.Name != in.Name {
		ex.Name = in.Name
		changed = true
	}
	if ex.Group != in.Group {
		ex.Group = in.Group
		changed = true
	}
	if ex.StreamURL != in.StreamURL {
		ex.StreamURL = in.StreamURL
		changed = true
	}
	if ex.LogoURL != in.LogoURL {
		ex.LogoURL = in.LogoURL
		changed = true
	}
	if ex.ChannelNumber != in.ChannelNumber {
		ex.ChannelNumber = in.ChannelNumber
		changed = true
	}
	if ex.Deleted {
		ex.Deleted = false
		ex.DeletedAt = time.Time{}
		changed = true
	}
	return changed
}

// Reconcile merges incoming into the playlist's stored channels. The whole
// merge is one transaction: readers see the old catalog or the new one.
func (r *Reconciler) Reconcile(ctx context.Context, playlistID string, incoming []catalog.Channel, now time.Time) (Result, error) {
	var res Result

	err := r.store.Write(ctx, func(tx *sql.Tx) error {
		rows, err := store.ChannelsTx(ctx, tx, playlistID)
		if err != nil {
			return err
		}
		existing := make([]*catalog.Channel, len(rows))
		for i := range rows {
			existing[i] = &rows[i]
		}
		ix := buildIndex(existing)

		touched := make(map[string]bool)
		// Per-canonical-id outcome, so duplicate batch entries hitting the
		// same channel count once (last entry wins for field values).
		state := make(map[string]string)

		for _, in := range incoming {
			ex := ix.match(in)
			if ex == nil {
				ch := in
				ch.ID = uuid.NewString()
				ch.PlaylistID = playlistID
				ch.Deleted = false
				ch.DeletedAt = time.Time{}
				if err := store.InsertChannelTx(ctx, tx, ch); err != nil {
					return err
				}
				inserted := ch
				ix.add(&inserted)
				touched[ch.ID] = true
				state[ch.ID] = "added"
				continue
			}

			touched[ex.ID] = true
			if apply(ex, in) {
				if err := store.UpdateChannelTx(ctx, tx, *ex); err != nil {
					return err
				}
				if state[ex.ID] != "added" {
					state[ex.ID] = "updated"
				}
			} else if state[ex.ID] == "" {
				state[ex.ID] = "unchanged"
			}
			// Fresh keys may have been adopted; keep the index complete.
			ix.add(ex)
		}

		var toDelete []string
		for _, ex := range existing {
			if !ex.Deleted && !touched[ex.ID] {
				toDelete = append(toDelete, ex.ID)
			}
		}
		if err := store.SoftDeleteChannelsTx(ctx, tx, toDelete, now); err != nil {
			return err
		}

		for _, st := range state {
			switch st {
			case "added":
				res.Added++
			case "updated":
				res.Updated++
			case "unchanged":
				res.Unchanged++
			}
		}
		res.SoftDeleted = len(toDelete)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	r.log.Info().Str("playlist", playlistID).
		Int("added", res.Added).Int("updated", res.Updated).
		Int("soft_deleted", res.SoftDeleted).Int("unchanged", res.Unchanged).
		Msg("reconciled channel batch")
	return res, nil
}

// Purge hard-removes channels soft-deleted longer than olderThan ago.
// Zero means DefaultPurgeAfter.
func (r *Reconciler) Purge(ctx context.Context, now time.Time, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = DefaultPurgeAfter
	}
	n, err := r.store.PurgeDeletedChannels(ctx, now.Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info().Int("purged", n).Msg("purged soft-deleted channels")
	}
	return n, nil
}

// ImportVod swaps a playlist's VOD catalog wholesale. VOD items have no
// device-local state worth preserving, so replacement is the merge.
func (r *Reconciler) ImportVod(ctx context.Context, playlistID string, items []catalog.VodItem) (added, removed int, err error) {
	added, removed, err = r.store.ReplaceVod(ctx, playlistID, items)
	if err != nil {
		return 0, 0, err
	}
	r.log.Info().Str("playlist", playlistID).
		Int("added", added).Int("removed", removed).
		Msg("replaced vod catalog")
	return added, removed, nil
}
