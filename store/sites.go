package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// SiteConfiguration maps a site domain to the course organizations it serves.
// An empty org filter means the site serves every organization.
type SiteConfiguration struct {
	Domain    string
	OrgFilter []string
}

// HasOrg reports whether the site serves courses from the given organization.
func (sc SiteConfiguration) HasOrg(org string) bool {
	if len(sc.OrgFilter) == 0 {
		return true
	}
	for _, o := range sc.OrgFilter {
		if o == org {
			return true
		}
	}
	return false
}

// UpsertSiteConfiguration inserts or replaces a site configuration.
func (s *Store) UpsertSiteConfiguration(ctx context.Context, sc SiteConfiguration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_configurations (domain, org_filter) VALUES (?, ?)
		 ON CONFLICT(domain) DO UPDATE SET org_filter = excluded.org_filter`,
		sc.Domain, strings.Join(sc.OrgFilter, ","),
	)
	return err
}

// SiteConfigurationByDomain looks up the configuration for a site domain.
func (s *Store) SiteConfigurationByDomain(ctx context.Context, domain string) (SiteConfiguration, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT org_filter FROM site_configurations WHERE domain = ?", domain,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return SiteConfiguration{}, errors.Wrapf(ErrNotFound, "site %q", domain)
	}
	if err != nil {
		return SiteConfiguration{}, err
	}

	sc := SiteConfiguration{Domain: domain}
	if raw != "" {
		sc.OrgFilter = strings.Split(raw, ",")
	}
	return sc, nil
}
