package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// bitBatchSize is how many bits go into one storage transaction
const bitBatchSize = 64

// ftsPrefix namespaces the inverted index keys away from badgerhold records
const ftsPrefix = "fts:bit:"

// BitStorage implements the BitStorage interface for Badger.
// Alongside each bit it maintains an inverted token index under raw badger
// keys (fts:bit:<token>:<bit_id>), written in the same transaction as the
// bit itself so the index never drifts from the records.
type BitStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBitStorage creates a new BitStorage instance
func NewBitStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BitStorage {
	return &BitStorage{
		db:     db,
		logger: logger,
	}
}

// SaveBit stores one bit and its index entries in a single transaction
func (s *BitStorage) SaveBit(ctx context.Context, bit *models.LearningBit) error {
	if !bit.Valid() {
		return models.Kindf(models.ErrBadInput, "learning bit failed validation: id=%q page=%q", bit.BitID, bit.PageID)
	}
	if bit.ExtractedAt.IsZero() {
		bit.ExtractedAt = time.Now()
	}

	return s.db.WithRetry(ctx, "save bit", func() error {
		return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			return s.writeBitTx(txn, bit)
		})
	})
}

// SaveBits stores bits in batches of up to 64 per transaction. Each batch is
// atomic: either every bit and its index entries land, or none do. Oversized
// batches that overflow a badger transaction fall back to per-bit saves.
func (s *BitStorage) SaveBits(ctx context.Context, bits []*models.LearningBit) error {
	for start := 0; start < len(bits); start += bitBatchSize {
		end := start + bitBatchSize
		if end > len(bits) {
			end = len(bits)
		}
		batch := bits[start:end]

		for _, bit := range batch {
			if !bit.Valid() {
				return models.Kindf(models.ErrBadInput, "learning bit failed validation: id=%q page=%q", bit.BitID, bit.PageID)
			}
			if bit.ExtractedAt.IsZero() {
				bit.ExtractedAt = time.Now()
			}
		}

		err := s.db.WithRetry(ctx, "save bit batch", func() error {
			return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
				for _, bit := range batch {
					if err := s.writeBitTx(txn, bit); err != nil {
						return err
					}
				}
				return nil
			})
		})
		if errors.Is(err, badgerdb.ErrTxnTooBig) {
			s.logger.Warn().Int("batch", len(batch)).Msg("Bit batch exceeded transaction size, saving individually")
			for _, bit := range batch {
				if err := s.SaveBit(ctx, bit); err != nil {
					return err
				}
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeBitTx upserts the bit record and reconciles its index entries inside
// an open transaction
func (s *BitStorage) writeBitTx(txn *badgerdb.Txn, bit *models.LearningBit) error {
	var existing models.LearningBit
	hadExisting := true
	if err := s.db.Store().TxGet(txn, bit.BitID, &existing); err != nil {
		if err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to read existing bit: %w", err)
		}
		hadExisting = false
	}

	// A soft-deleted bit stays deleted; re-crawls do not resurrect it
	if hadExisting && existing.Deleted {
		return nil
	}

	// Re-ingesting the same content is idempotent: keep the original
	// extraction timestamp so ordering stays stable across crawls
	if hadExisting && !existing.ExtractedAt.IsZero() {
		bit.ExtractedAt = existing.ExtractedAt
		bit.ReferenceCount = existing.ReferenceCount
	}

	if err := s.db.Store().TxUpsert(txn, bit.BitID, bit); err != nil {
		return fmt.Errorf("failed to save bit: %w", err)
	}

	newTokens := tokenize(bit.Content + " " + strings.Join(bit.Tags, " "))
	if hadExisting {
		for tok := range tokenize(existing.Content + " " + strings.Join(existing.Tags, " ")) {
			if _, still := newTokens[tok]; !still {
				if err := txn.Delete(ftsKey(tok, bit.BitID)); err != nil {
					return fmt.Errorf("failed to drop stale index entry: %w", err)
				}
			}
		}
	}
	for tok := range newTokens {
		if err := txn.Set(ftsKey(tok, bit.BitID), nil); err != nil {
			return fmt.Errorf("failed to write index entry: %w", err)
		}
	}
	return nil
}

func (s *BitStorage) GetBit(ctx context.Context, bitID string) (*models.LearningBit, error) {
	var bit models.LearningBit
	if err := s.db.Store().Get(bitID, &bit); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("learning bit not found: %s", bitID)
		}
		return nil, fmt.Errorf("failed to get bit: %w", err)
	}
	return &bit, nil
}

func (s *BitStorage) QueryBits(ctx context.Context, filter *models.BitFilter) ([]*models.LearningBit, error) {
	query := badgerhold.Where("BitID").Ne("").And("Deleted").Eq(false)

	if filter != nil {
		if filter.Category != "" {
			query = query.And("Category").Eq(filter.Category)
		}
		if filter.Subcategory != "" {
			query = query.And("Subcategory").Eq(filter.Subcategory)
		}
		if filter.ContentType != "" {
			query = query.And("ContentType").Eq(filter.ContentType)
		}
		if filter.Complexity != "" {
			query = query.And("ComplexityLevel").Eq(filter.Complexity)
		}
		if filter.MinImportance > 0 {
			query = query.And("ImportanceScore").Ge(filter.MinImportance)
		}
		query = query.SortBy("ImportanceScore").Reverse()
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Skip(filter.Offset)
		}
	}

	var bits []models.LearningBit
	if err := s.db.Store().Find(&bits, query); err != nil {
		return nil, fmt.Errorf("failed to query bits: %w", err)
	}

	result := make([]*models.LearningBit, len(bits))
	for i := range bits {
		result[i] = &bits[i]
	}
	return result, nil
}

// DeleteBit is a soft delete: the record stays for history with Deleted
// set, while its index entries are removed in the same transaction so
// search never surfaces it again.
func (s *BitStorage) DeleteBit(ctx context.Context, bitID string) error {
	bit, err := s.GetBit(ctx, bitID)
	if err != nil {
		return nil // Already gone
	}
	if bit.Deleted {
		return nil
	}

	return s.db.WithRetry(ctx, "delete bit", func() error {
		return s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			for tok := range tokenize(bit.Content + " " + strings.Join(bit.Tags, " ")) {
				if err := txn.Delete(ftsKey(tok, bitID)); err != nil {
					return fmt.Errorf("failed to drop index entry: %w", err)
				}
			}
			bit.Deleted = true
			if err := s.db.Store().TxUpsert(txn, bitID, bit); err != nil {
				return fmt.Errorf("failed to mark bit deleted: %w", err)
			}
			return nil
		})
	})
}

// SearchBits runs a token search over indexed content. Results are ranked by
// number of matched query tokens, then importance, then recency.
func (s *BitStorage) SearchBits(ctx context.Context, query string, limit int) ([]*models.LearningBit, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []*models.LearningBit{}, nil
	}

	matches := make(map[string]int)
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		for tok := range tokens {
			prefix := []byte(ftsPrefix + tok + ":")
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				bitID := string(it.Item().Key()[len(prefix):])
				matches[bitID]++
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if len(matches) == 0 {
		return []*models.LearningBit{}, nil
	}

	type scored struct {
		bit     *models.LearningBit
		matched int
	}
	results := make([]scored, 0, len(matches))
	for bitID, matched := range matches {
		var bit models.LearningBit
		if err := s.db.Store().Get(bitID, &bit); err != nil {
			// Writes are transactional, so an index entry without a
			// record should not happen; skip it if it does
			continue
		}
		if bit.Deleted {
			continue
		}
		results = append(results, scored{bit: &bit, matched: matched})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].matched != results[j].matched {
			return results[i].matched > results[j].matched
		}
		if results[i].bit.ImportanceScore != results[j].bit.ImportanceScore {
			return results[i].bit.ImportanceScore > results[j].bit.ImportanceScore
		}
		return results[i].bit.ExtractedAt.After(results[j].bit.ExtractedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	bits := make([]*models.LearningBit, len(results))
	for i := range results {
		bits[i] = results[i].bit
	}
	return bits, nil
}

func (s *BitStorage) IncrementReference(ctx context.Context, bitID string) error {
	return s.db.WithRetry(ctx, "increment reference", func() error {
		var bit models.LearningBit
		if err := s.db.Store().Get(bitID, &bit); err != nil {
			return fmt.Errorf("failed to get bit for reference bump: %w", err)
		}
		bit.ReferenceCount++
		if err := s.db.Store().Upsert(bitID, &bit); err != nil {
			return fmt.Errorf("failed to update reference count: %w", err)
		}
		return nil
	})
}

func (s *BitStorage) CountBits(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.LearningBit{}, badgerhold.Where("Deleted").Eq(false))
	if err != nil {
		return 0, fmt.Errorf("failed to count bits: %w", err)
	}
	return int(count), nil
}

func (s *BitStorage) CountBitsSince(ctx context.Context, since time.Time) (int, error) {
	count, err := s.db.Store().Count(&models.LearningBit{},
		badgerhold.Where("ExtractedAt").Ge(since).And("Deleted").Eq(false))
	if err != nil {
		return 0, fmt.Errorf("failed to count recent bits: %w", err)
	}
	return int(count), nil
}

func (s *BitStorage) CountByCategory(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.forEachBit(func(bit *models.LearningBit) {
		counts[bit.Category]++
	})
	return counts, err
}

func (s *BitStorage) CountByContentType(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.forEachBit(func(bit *models.LearningBit) {
		counts[string(bit.ContentType)]++
	})
	return counts, err
}

func (s *BitStorage) CountByComplexity(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.forEachBit(func(bit *models.LearningBit) {
		counts[string(bit.ComplexityLevel)]++
	})
	return counts, err
}

func (s *BitStorage) AverageScores(ctx context.Context) (float64, float64, error) {
	var importanceSum, confidenceSum float64
	var n int
	err := s.forEachBit(func(bit *models.LearningBit) {
		importanceSum += bit.ImportanceScore
		confidenceSum += bit.ConfidenceScore
		n++
	})
	if err != nil || n == 0 {
		return 0, 0, err
	}
	return importanceSum / float64(n), confidenceSum / float64(n), nil
}

// forEachBit streams all live bits through fn. Aggregations walk the table
// rather than maintaining counters that could drift.
func (s *BitStorage) forEachBit(fn func(*models.LearningBit)) error {
	var bits []models.LearningBit
	if err := s.db.Store().Find(&bits, badgerhold.Where("Deleted").Eq(false)); err != nil {
		return fmt.Errorf("failed to scan bits: %w", err)
	}
	for i := range bits {
		fn(&bits[i])
	}
	return nil
}

func ftsKey(token, bitID string) []byte {
	return []byte(ftsPrefix + token + ":" + bitID)
}

// tokenize splits text into lowercase alphanumeric tokens of length >= 2.
// Returns a set: repeated tokens index once.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() >= 2 {
			tokens[b.String()] = struct{}{}
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
