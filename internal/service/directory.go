package service

import (
	"context"
	"strings"
)

// StaticDirectory is a config-backed identity provider. An empty list accepts any id.
type StaticDirectory struct {
	resources map[string]struct{}
	subjects  map[string]struct{}
}

func NewStaticDirectory(resources, subjects []string) *StaticDirectory {
	return &StaticDirectory{
		resources: toSet(resources),
		subjects:  toSet(subjects),
	}
}

func (d *StaticDirectory) ResourceExists(_ context.Context, resourceID string) (bool, error) {
	return contains(d.resources, resourceID), nil
}

func (d *StaticDirectory) SubjectExists(_ context.Context, subjectID string) (bool, error) {
	return contains(d.subjects, subjectID), nil
}

func contains(set map[string]struct{}, id string) bool {
	if len(set) == 0 {
		return strings.TrimSpace(id) != ""
	}
	_, ok := set[strings.TrimSpace(id)]
	return ok
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
