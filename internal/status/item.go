package status

import "sort"

// EmptyListPlaceholder is the key and message identifier recorded when a step
// resolves to no work items.
const EmptyListPlaceholder = "OBJECTS_LIST_EMPTY"

// ItemStatus is the outcome of one work item or the aggregate of many.
// Children are keyed by action or step name; items themselves are never
// stored as children of a step aggregate, only folded into it.
type ItemStatus struct {
	ItemID    string                 `json:"item_id"`
	Code      Code                   `json:"status"`
	MessageID string                 `json:"message_id,omitempty"`
	Meter     []int                  `json:"meter"`
	Items     map[string]*ItemStatus `json:"items,omitempty"`
}

// New returns an empty aggregate for id, starting at Started.
func New(id string) *ItemStatus {
	return &ItemStatus{ItemID: id, Code: Started, Meter: make([]int, len(codeNames))}
}

// Outcome returns a leaf status with a single recorded code.
func Outcome(id string, code Code, messageID string) *ItemStatus {
	s := New(id)
	s.MessageID = messageID
	s.Increment(code)
	return s
}

// FatalOutcome is shorthand for a FATAL leaf outcome.
func FatalOutcome(id, messageID string) *ItemStatus {
	return Outcome(id, Fatal, messageID)
}

// EmptyList returns the WARNING placeholder used for an empty item set.
func EmptyList(stepName string) *ItemStatus {
	s := New(stepName)
	s.SetChild(Outcome(EmptyListPlaceholder, Warning, EmptyListPlaceholder))
	return s
}

// Increment records one more occurrence of code and raises the severity if
// needed.
func (s *ItemStatus) Increment(code Code) *ItemStatus {
	s.ensureMeter()
	if code.Valid() {
		s.Meter[code]++
	}
	s.raise(code, "")
	return s
}

// Count returns how many occurrences of code have been recorded.
func (s *ItemStatus) Count(code Code) int {
	if s == nil || !code.Valid() || len(s.Meter) <= int(code) {
		return 0
	}
	return s.Meter[code]
}

// Total returns the number of recorded outcomes, excluding Started.
func (s *ItemStatus) Total() int {
	if s == nil {
		return 0
	}
	total := 0
	for code := OK; code <= Fatal; code++ {
		total += s.Count(code)
	}
	return total
}

// SetChild stores child under its ItemID and folds it into s.
func (s *ItemStatus) SetChild(child *ItemStatus) *ItemStatus {
	if child == nil {
		return s
	}
	if s.Items == nil {
		s.Items = make(map[string]*ItemStatus)
	}
	s.Items[child.ItemID] = child
	s.addMeter(child.Meter)
	s.raise(child.Code, child.MessageID)
	return s
}

// Merge folds other into s. The severity becomes the maximum of both, meters
// are summed, and children with the same key are merged recursively. A tie on
// severity keeps the message identifier already held by s.
func (s *ItemStatus) Merge(other *ItemStatus) *ItemStatus {
	if other == nil {
		return s
	}
	s.addMeter(other.Meter)
	s.raise(other.Code, other.MessageID)
	for key, child := range other.Items {
		if child == nil {
			continue
		}
		if s.Items == nil {
			s.Items = make(map[string]*ItemStatus)
		}
		existing, ok := s.Items[key]
		if !ok {
			s.Items[key] = child.Clone()
			continue
		}
		existing.Merge(child)
	}
	return s
}

// Clone returns a deep copy.
func (s *ItemStatus) Clone() *ItemStatus {
	if s == nil {
		return nil
	}
	out := &ItemStatus{ItemID: s.ItemID, Code: s.Code, MessageID: s.MessageID}
	out.Meter = append([]int(nil), s.Meter...)
	if len(s.Items) > 0 {
		out.Items = make(map[string]*ItemStatus, len(s.Items))
		for k, v := range s.Items {
			out.Items[k] = v.Clone()
		}
	}
	return out
}

// ChildKeys returns the child keys in sorted order.
func (s *ItemStatus) ChildKeys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.Items))
	for k := range s.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fold aggregates outcomes into a fresh status named id. An empty input yields
// the WARNING placeholder. The fold visits every outcome.
func Fold(id string, outcomes ...*ItemStatus) *ItemStatus {
	agg := New(id)
	seen := 0
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		agg.Merge(o)
		seen++
	}
	if seen == 0 {
		return EmptyList(id)
	}
	return agg
}

func (s *ItemStatus) raise(code Code, messageID string) {
	switch {
	case code > s.Code:
		s.Code = code
		if messageID != "" {
			s.MessageID = messageID
		}
	case code == s.Code && s.MessageID == "":
		s.MessageID = messageID
	}
}

func (s *ItemStatus) addMeter(meter []int) {
	s.ensureMeter()
	for i := 0; i < len(meter) && i < len(s.Meter); i++ {
		s.Meter[i] += meter[i]
	}
}

func (s *ItemStatus) ensureMeter() {
	if len(s.Meter) < len(codeNames) {
		grown := make([]int, len(codeNames))
		copy(grown, s.Meter)
		s.Meter = grown
	}
}
