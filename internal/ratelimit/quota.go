package ratelimit

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Quota allows at most MaxCount submissions per Hours window.
// An empty Group applies to every submission.
type Quota struct {
	Group    string `yaml:"group"`
	MaxCount int    `yaml:"max"`
	Hours    int    `yaml:"hours"`
}

func (q Quota) Unlimited() bool {
	return q.MaxCount < 0 || q.Hours < 0
}

func (q Quota) Window() time.Duration {
	return time.Duration(q.Hours) * time.Hour
}

func (q Quota) String() string {
	group := q.Group
	if group == "" {
		group = "*"
	}
	return fmt.Sprintf("%s=%d:%d", group, q.MaxCount, q.Hours)
}

// ParseQuotas parses "group=max:hours" entries separated by commas.
// An entry without a group, or with group "*" or "all", applies to every group.
func ParseQuotas(value string) ([]Quota, error) {
	var quotas []Quota
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		quota, err := parseQuota(entry)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, quota)
	}
	return quotas, nil
}

func parseQuota(entry string) (Quota, error) {
	group, limits, found := strings.Cut(entry, "=")
	if !found {
		group, limits = "", entry
	}
	maxCount, hours, found := strings.Cut(limits, ":")
	if !found {
		return Quota{}, errors.Errorf("invalid quota %q, expected group=max:hours", entry)
	}

	q := Quota{Group: normalizeGroup(group)}
	var err error
	if q.MaxCount, err = strconv.Atoi(strings.TrimSpace(maxCount)); err != nil {
		return Quota{}, errors.Wrapf(err, "invalid max count in quota %q", entry)
	}
	if q.Hours, err = strconv.Atoi(strings.TrimSpace(hours)); err != nil {
		return Quota{}, errors.Wrapf(err, "invalid time period in quota %q", entry)
	}
	return q, nil
}

func normalizeGroup(group string) string {
	group = strings.TrimSpace(group)
	if group == "*" || strings.EqualFold(group, "all") {
		return ""
	}
	return group
}

// LoadQuotaFile reads a YAML list of quotas.
func LoadQuotaFile(path string) ([]Quota, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read quota file")
	}
	var quotas []Quota
	if err := yaml.UnmarshalStrict(data, &quotas); err != nil {
		return nil, errors.Wrapf(err, "Failed to parse quota file %s", path)
	}
	for i := range quotas {
		quotas[i].Group = normalizeGroup(quotas[i].Group)
	}
	return quotas, nil
}
