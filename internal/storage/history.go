package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
)

// historyPrefix 历史记录键前缀,序号补零保证键有序
const historyPrefix = "history/"

// 导出格式
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// History 只追加的操作历史
type History struct {
	db Durable

	mu      sync.Mutex
	lastSeq int64
	lastTS  time.Time
	now     func() time.Time
}

// OpenHistory 打开历史记录,恢复最后的序号和时间戳
func OpenHistory(db Durable) (*History, error) {
	h := &History{db: db, now: time.Now}

	keys, err := db.Keys(historyPrefix)
	if err != nil {
		return nil, &models.StorageError{Op: "load", Keys: []string{historyPrefix}, Cause: err}
	}
	if len(keys) == 0 {
		return h, nil
	}

	last := keys[len(keys)-1]
	values, err := db.Get(last)
	if err != nil {
		return nil, &models.StorageError{Op: "load", Keys: []string{last}, Cause: err}
	}
	var entry models.HistoryEntry
	if err := entry.FromJSON(values[last]); err != nil {
		return nil, &models.StorageError{Op: "load", Keys: []string{last}, Cause: err}
	}
	h.lastSeq = entry.Seq
	h.lastTS = entry.Timestamp
	return h, nil
}

// Append 追加记录,分配单调递增的序号和时间戳
func (h *History) Append(entry models.HistoryEntry) (models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := h.now()
	if !ts.After(h.lastTS) {
		ts = h.lastTS.Add(time.Nanosecond)
	}
	entry.Seq = h.lastSeq + 1
	entry.Timestamp = ts

	data, err := entry.ToJSON()
	if err != nil {
		return entry, err
	}
	key := historyKey(entry.Seq)
	if err := h.db.Set(map[string][]byte{key: data}); err != nil {
		return entry, &models.StorageError{Op: "append", Keys: []string{key}, Cause: err}
	}

	h.lastSeq = entry.Seq
	h.lastTS = ts
	return entry, nil
}

// List 按序号返回全部记录
func (h *History) List() ([]models.HistoryEntry, error) {
	keys, err := h.db.Keys(historyPrefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := h.db.Get(keys...)
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(keys))
	for _, k := range keys {
		var e models.HistoryEntry
		if err := e.FromJSON(values[k]); err != nil {
			return nil, fmt.Errorf("历史记录损坏 [%s]: %w", k, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListRun 返回指定运行的记录
func (h *History) ListRun(runID string) ([]models.HistoryEntry, error) {
	all, err := h.List()
	if err != nil {
		return nil, err
	}
	result := make([]models.HistoryEntry, 0)
	for _, e := range all {
		if e.RunID == runID {
			result = append(result, e)
		}
	}
	return result, nil
}

// Export 将全部历史以指定格式写入w
func (h *History) Export(w io.Writer, format string) (int, error) {
	entries, err := h.List()
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(format) {
	case FormatJSON, "":
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return len(entries), enc.Encode(entries)
	case FormatCSV:
		return len(entries), writeCSV(w, entries)
	default:
		return 0, fmt.Errorf("不支持的导出格式: %s (可选: json, csv)", format)
	}
}

func writeCSV(w io.Writer, entries []models.HistoryEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"seq", "timestamp", "handle", "display_name", "avatar_url", "run_id",
		"mode", "action", "avatar_filter", "name_filter", "name_language", "online_filter", "whitelist", "blacklist"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.Seq, 10),
			e.Timestamp.Format(time.RFC3339Nano),
			e.Handle,
			e.DisplayName,
			e.AvatarURL,
			e.RunID,
			string(e.Filters.Mode),
			string(e.Filters.Action),
			string(e.Filters.AvatarFilter),
			string(e.Filters.NameFilter),
			string(e.Filters.NameLanguage),
			string(e.Filters.OnlineFilter),
			e.Filters.Whitelist,
			e.Filters.Blacklist,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func historyKey(seq int64) string {
	return fmt.Sprintf("%s%020d", historyPrefix, seq)
}
