// Package verification sends drafts to village correspondents over WhatsApp
// and resolves their confirm/reject replies into a draft status.
package verification

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Correspondent is a trusted local contact for a village.
type Correspondent struct {
	Name  string `json:"name"  yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
}

// Directory maps village ids to their correspondents.
type Directory map[string][]Correspondent

// ParseDirectory decodes the JSON form {"village_id":[{"name","phone"}]}.
// An empty input yields an empty directory.
func ParseDirectory(raw string) (Directory, error) {
	dir := Directory{}
	if strings.TrimSpace(raw) == "" {
		return dir, nil
	}
	if err := json.Unmarshal([]byte(raw), &dir); err != nil {
		return nil, fmt.Errorf("parse correspondents: %w", err)
	}
	return dir, nil
}

// ForVillage returns the correspondents of villageID.
func (d Directory) ForVillage(villageID string) []Correspondent {
	return d[villageID]
}

// Match is a correspondent and every village they report for.
type Match struct {
	Correspondent Correspondent
	VillageIDs    []string
}

// FindByPhone looks up a correspondent by phone number. Both sides are
// normalized so "+41..." and "41..." match.
func (d Directory) FindByPhone(phone string) (Match, bool) {
	target := NormalizePhone(phone)
	if target == "" {
		return Match{}, false
	}

	var m Match
	for villageID, people := range d {
		for _, c := range people {
			if NormalizePhone(c.Phone) != target {
				continue
			}
			if len(m.VillageIDs) == 0 {
				m.Correspondent = c
			}
			m.VillageIDs = append(m.VillageIDs, villageID)
			break
		}
	}
	if len(m.VillageIDs) == 0 {
		return Match{}, false
	}
	sort.Strings(m.VillageIDs)
	return m, true
}

// NormalizePhone strips whitespace and a leading "+".
func NormalizePhone(phone string) string {
	return strings.TrimPrefix(strings.TrimSpace(phone), "+")
}

// MaskPhone keeps the first and last three digits for logging.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:3] + "***" + phone[len(phone)-3:]
}
