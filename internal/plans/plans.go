// Package plans resolves the upload quota that applies to a user.
package plans

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dharsanguruparan/Quill/internal/model"
)

const (
	Free = "free"
	Pro  = "pro"
)

// Plan is one entry of the plan table.
type Plan struct {
	Name        string `yaml:"name"`
	PagesPerPDF int    `yaml:"pages_per_pdf"`
	MaxFileSize int64  `yaml:"max_file_size"`
	Price       int    `yaml:"price"`
}

// Table maps plan names to limits. It must contain Free and Pro.
type Table map[string]Plan

// DefaultTable is used when no plans file is configured.
func DefaultTable() Table {
	return Table{
		Free: {Name: "Free", PagesPerPDF: 5, MaxFileSize: 4 << 20, Price: 0},
		Pro:  {Name: "Pro", PagesPerPDF: 25, MaxFileSize: 16 << 20, Price: 14},
	}
}

type tableFile struct {
	Plans Table `yaml:"plans"`
}

// Parse reads a YAML document of the form
//
//	plans:
//	  free: {name: Free, pages_per_pdf: 5, max_file_size: 4194304}
//	  pro:  {name: Pro, pages_per_pdf: 25, max_file_size: 16777216}
//
// Plans missing from the document keep their default values.
func Parse(r io.Reader) (Table, error) {
	var doc tableFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	table := DefaultTable()
	for key, p := range doc.Plans {
		if p.PagesPerPDF <= 0 || p.MaxFileSize <= 0 {
			return nil, fmt.Errorf("plan %q: limits must be positive: %w", key, model.ErrValidation)
		}
		if p.Name == "" {
			p.Name = key
		}
		table[key] = p
	}
	return table, nil
}

// LoadFile parses the plans file at path. An empty path yields the default
// table.
func LoadFile(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plans file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Names returns the plan keys in a stable order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SubscriptionLookup reports whether a user holds an active paid plan.
type SubscriptionLookup interface {
	IsSubscribed(ctx context.Context, userID string) (bool, error)
}

// Provider answers Limits for the ingestion pipeline.
type Provider struct {
	table Table
	subs  SubscriptionLookup
}

func NewProvider(table Table, subs SubscriptionLookup) *Provider {
	if table == nil {
		table = DefaultTable()
	}
	return &Provider{table: table, subs: subs}
}

// Limits returns the Pro limits for subscribed users and the Free limits
// otherwise.
func (p *Provider) Limits(ctx context.Context, userID string) (model.PlanLimits, error) {
	subscribed := false
	if p.subs != nil {
		var err error
		subscribed, err = p.subs.IsSubscribed(ctx, userID)
		if err != nil {
			return model.PlanLimits{}, fmt.Errorf("lookup subscription for %s: %w", userID, err)
		}
	}
	key := Free
	if subscribed {
		key = Pro
	}
	plan := p.table[key]
	return model.PlanLimits{
		Name:             plan.Name,
		PagesPerPDF:      plan.PagesPerPDF,
		MaxFileSizeBytes: plan.MaxFileSize,
		IsSubscribed:     subscribed,
	}, nil
}
