// Package changeindex implements the change timeline and top-of-timeline
// discipline (spec §4.4): change records keyed by id, an ordered timeline of
// change-ids (newest first), and the single mutable "top" pointer.
package changeindex

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	json "github.com/goccy/go-json"
)

type Index struct {
	changes   kv.Partition
	timeline  kv.Partition
	top       kv.Partition
	indexMeta kv.Partition
}

func New(store *kv.Store) *Index {
	return &Index{
		changes:   store.Partition(kv.Changes),
		timeline:  store.Partition(kv.Timeline),
		top:       store.Partition(kv.Top),
		indexMeta: store.Partition(kv.IndexMeta),
	}
}

// NewAt is New bound only to caller-chosen changes/timeline partitions, with
// no top or index_meta binding. Used by clone_import's staged replace (spec
// §5), which only needs to accumulate changes and a timeline before the
// swap; top and index_meta stay pointed at live state until then.
func NewAt(store *kv.Store, changesPartition, timelinePartition string) *Index {
	return &Index{
		changes:  store.Partition(changesPartition),
		timeline: store.Partition(timelinePartition),
	}
}

// DeriveID computes the deterministic content-addressed change id (spec
// §4.4): Digest(name || "\0" || description || "\0" || author || "\0" || timestamp).
func DeriveID(name, description, author string, timestamp uint64) vcstypes.Digest {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(description)
	b.WriteByte(0)
	b.WriteString(author)
	b.WriteByte(0)
	b.WriteString(formatTimestamp(timestamp))
	sum := sha256.Sum256([]byte(b.String()))
	return vcstypes.Digest(hex.EncodeToString(sum[:]))
}

func formatTimestamp(ts uint64) string {
	// A fixed-width decimal keeps DeriveID's input unambiguous without
	// importing strconv's variable-width formatting quirks into the hash.
	const digits = "0123456789"
	buf := make([]byte, 20)
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = digits[ts%10]
		ts /= 10
	}
	return string(buf)
}

func (idx *Index) PutChange(c *vcstypes.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return vcserr.Wrap("changeindex.PutChange", vcserr.Storage, err)
	}
	if err := idx.changes.Put([]byte(c.ID), data); err != nil {
		return vcserr.Wrap("changeindex.PutChange", vcserr.Storage, err)
	}
	return nil
}

func (idx *Index) GetChange(id vcstypes.Digest) (*vcstypes.Change, error) {
	data, err := idx.changes.Get([]byte(id))
	if err != nil {
		return nil, vcserr.Wrap("changeindex.GetChange", vcserr.Storage, err)
	}
	if data == nil {
		return nil, nil
	}
	var c vcstypes.Change
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, vcserr.Wrap("changeindex.GetChange", vcserr.Storage, err)
	}
	return &c, nil
}

// GetTop returns the current top change-id, or ("", false) if none.
func (idx *Index) GetTop() (vcstypes.Digest, bool, error) {
	v, err := idx.top.Get([]byte(kv.TopKey))
	if err != nil {
		return "", false, vcserr.Wrap("changeindex.GetTop", vcserr.Storage, err)
	}
	if v == nil {
		return "", false, nil
	}
	return vcstypes.Digest(v), true, nil
}

func (idx *Index) SetTop(id vcstypes.Digest) error {
	if err := idx.top.Put([]byte(kv.TopKey), []byte(id)); err != nil {
		return vcserr.Wrap("changeindex.SetTop", vcserr.Storage, err)
	}
	return nil
}

func (idx *Index) ClearTop() error {
	if err := idx.top.Delete([]byte(kv.TopKey)); err != nil {
		return vcserr.Wrap("changeindex.ClearTop", vcserr.Storage, err)
	}
	return nil
}

func (idx *Index) GetTimeline() ([]vcstypes.Digest, error) {
	data, err := idx.timeline.Get([]byte(kv.TimelineKey))
	if err != nil {
		return nil, vcserr.Wrap("changeindex.GetTimeline", vcserr.Storage, err)
	}
	if data == nil {
		return nil, nil
	}
	var ids []vcstypes.Digest
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, vcserr.Wrap("changeindex.GetTimeline", vcserr.Storage, err)
	}
	return ids, nil
}

func (idx *Index) putTimeline(ids []vcstypes.Digest) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return vcserr.Wrap("changeindex.putTimeline", vcserr.Storage, err)
	}
	if err := idx.timeline.Put([]byte(kv.TimelineKey), data); err != nil {
		return vcserr.Wrap("changeindex.putTimeline", vcserr.Storage, err)
	}
	return nil
}

// SetTimeline overwrites the whole timeline wholesale, used by clone_import's
// atomic-replace of engine state.
func (idx *Index) SetTimeline(ids []vcstypes.Digest) error {
	return idx.putTimeline(ids)
}

// PrependToTimeline inserts id at position 0 (newest).
func (idx *Index) PrependToTimeline(id vcstypes.Digest) error {
	ids, err := idx.GetTimeline()
	if err != nil {
		return err
	}
	ids = append([]vcstypes.Digest{id}, ids...)
	return idx.putTimeline(ids)
}

// AppendToTimeline inserts id at the end (oldest).
func (idx *Index) AppendToTimeline(id vcstypes.Digest) error {
	ids, err := idx.GetTimeline()
	if err != nil {
		return err
	}
	ids = append(ids, id)
	return idx.putTimeline(ids)
}

// RemoveFromTimeline removes id; if it was top, top is cleared.
func (idx *Index) RemoveFromTimeline(id vcstypes.Digest) error {
	ids, err := idx.GetTimeline()
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	if err := idx.putTimeline(out); err != nil {
		return err
	}
	top, ok, err := idx.GetTop()
	if err != nil {
		return err
	}
	if ok && top == id {
		return idx.ClearTop()
	}
	return nil
}

// ResolveShort resolves a (possibly short) id prefix against the change
// table, returning NotFound, Conflict (ambiguous), or the single match.
func (idx *Index) ResolveShort(prefix string) (vcstypes.Digest, error) {
	if len(prefix) >= 64 {
		// Already a full id; verify existence.
		c, err := idx.GetChange(vcstypes.Digest(prefix))
		if err != nil {
			return "", err
		}
		if c == nil {
			return "", vcserr.New("changeindex.ResolveShort", vcserr.NotFound, "change not found: "+prefix)
		}
		return c.ID, nil
	}

	var matches []vcstypes.Digest
	err := idx.changes.PrefixIterate([]byte(prefix), func(k, v []byte) bool {
		matches = append(matches, vcstypes.Digest(k))
		return true
	})
	if err != nil {
		return "", err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	switch len(matches) {
	case 0:
		return "", vcserr.New("changeindex.ResolveShort", vcserr.NotFound, "no change with prefix "+prefix)
	case 1:
		return matches[0], nil
	default:
		return "", vcserr.New("changeindex.ResolveShort", vcserr.Conflict, "ambiguous short id "+prefix)
	}
}

func (idx *Index) GetSource() (string, bool, error) {
	v, err := idx.indexMeta.Get([]byte(kv.SourceURLKey))
	if err != nil {
		return "", false, vcserr.Wrap("changeindex.GetSource", vcserr.Storage, err)
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (idx *Index) SetSource(url string) error {
	if err := idx.indexMeta.Put([]byte(kv.SourceURLKey), []byte(url)); err != nil {
		return vcserr.Wrap("changeindex.SetSource", vcserr.Storage, err)
	}
	return nil
}

func (idx *Index) GetExternalCredentials() (apiKey, userID string, ok bool, err error) {
	k, err := idx.indexMeta.Get([]byte(kv.ExternalAPIKeyKey))
	if err != nil {
		return "", "", false, vcserr.Wrap("changeindex.GetExternalCredentials", vcserr.Storage, err)
	}
	if k == nil {
		return "", "", false, nil
	}
	u, err := idx.indexMeta.Get([]byte(kv.ExternalUserIDKey))
	if err != nil {
		return "", "", false, vcserr.Wrap("changeindex.GetExternalCredentials", vcserr.Storage, err)
	}
	return string(k), string(u), true, nil
}

func (idx *Index) SetExternalCredentials(apiKey, userID string) error {
	if err := idx.indexMeta.Put([]byte(kv.ExternalAPIKeyKey), []byte(apiKey)); err != nil {
		return vcserr.Wrap("changeindex.SetExternalCredentials", vcserr.Storage, err)
	}
	if err := idx.indexMeta.Put([]byte(kv.ExternalUserIDKey), []byte(userID)); err != nil {
		return vcserr.Wrap("changeindex.SetExternalCredentials", vcserr.Storage, err)
	}
	return nil
}

// GetOrCreateLocal returns the current top change if it is Local, else
// mints a new blank Change{status=Local} and pushes it as top.
func (idx *Index) GetOrCreateLocal(author string, now func() uint64) (*vcstypes.Change, error) {
	top, ok, err := idx.GetTop()
	if err != nil {
		return nil, err
	}
	if ok {
		c, err := idx.GetChange(top)
		if err != nil {
			return nil, err
		}
		if c != nil && c.Status == vcstypes.StatusLocal {
			return c, nil
		}
	}
	ts := now()
	c := &vcstypes.Change{
		Name:      "untitled",
		Author:    author,
		Timestamp: ts,
		Status:    vcstypes.StatusLocal,
	}
	c.ID = DeriveID(c.Name, c.Description, c.Author, c.Timestamp)
	if err := idx.PutChange(c); err != nil {
		return nil, err
	}
	if err := idx.SetTop(c.ID); err != nil {
		return nil, err
	}
	return c, nil
}
