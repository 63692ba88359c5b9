// Package warehouse is the SQL-warehouse connector: it reads users, roles,
// grants, and the database/schema/table hierarchy out of a
// Postgres-compatible warehouse, and converges the platform by issuing
// CREATE ROLE / GRANT / REVOKE statements.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/errors"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// schemaConcurrency bounds outstanding per-schema object listings; five
// keeps warehouse queue slots free for real workloads.
const schemaConcurrency = 5

// AssetTypeDatabase and friends are the warehouse's declared asset types.
const (
	AssetTypeDatabase connectors.AssetType = "database"
	AssetTypeSchema   connectors.AssetType = "schema"
	AssetTypeTable    connectors.AssetType = "table"
	AssetTypeView     connectors.AssetType = "view"
)

// Config wires one warehouse connector.
type Config struct {
	// Namespace is the connector's registered name.
	Namespace connectors.Namespace
	// Account namespaces this warehouse's CUALs ("warehouse://<account>").
	Account string
	// DSN is the database connection string.
	DSN string
}

// Connector implements fetch and apply against one warehouse.
type Connector struct {
	cfg Config
	db  *sqlx.DB
}

// New opens the warehouse connection.
func New(cfg Config) (*Connector, error) {
	db, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, errors.TransportErrorf(err, "opening warehouse %s", cfg.Namespace)
	}
	return &Connector{cfg: cfg, db: db}, nil
}

// Close releases the connection pool.
func (c *Connector) Close() error { return c.db.Close() }

// Namespace implements the fetch and plan interfaces.
func (c *Connector) Namespace() connectors.Namespace { return c.cfg.Namespace }

// CualPrefix is the prefix namespacing this warehouse's assets.
func (c *Connector) CualPrefix() string {
	return "warehouse://" + c.cfg.Account
}

// Manifest declares which privileges each asset type accepts.
func (c *Connector) Manifest() yamlconfig.ConnectorManifest {
	tablePrivileges := connectors.NewStringSet("SELECT", "INSERT", "UPDATE", "DELETE", "TRUNCATE", "REFERENCES", "TRIGGER")
	return yamlconfig.ConnectorManifest{
		Namespace: c.cfg.Namespace,
		AllowedPrivileges: map[connectors.AssetType]connectors.StringSet{
			AssetTypeDatabase: connectors.NewStringSet("CONNECT", "CREATE", "TEMPORARY"),
			AssetTypeSchema:   connectors.NewStringSet("USAGE", "CREATE"),
			AssetTypeTable:    tablePrivileges,
			AssetTypeView:     connectors.NewStringSet("SELECT"),
		},
	}
}

type roleRow struct {
	Name     string `db:"rolname"`
	CanLogin bool   `db:"rolcanlogin"`
	Email    string `db:"email"`
}

type membershipRow struct {
	Member string `db:"member"`
	Role   string `db:"role"`
}

type schemaRow struct {
	Catalog string `db:"table_catalog"`
	Schema  string `db:"table_schema"`
}

type relationRow struct {
	Catalog string `db:"table_catalog"`
	Schema  string `db:"table_schema"`
	Name    string `db:"table_name"`
	Kind    string `db:"table_type"`
}

type grantRow struct {
	Grantee   string `db:"grantee"`
	Catalog   string `db:"table_catalog"`
	Schema    string `db:"table_schema"`
	Table     string `db:"table_name"`
	Privilege string `db:"privilege_type"`
}

// Fetch pulls the warehouse's authorization metadata. Role and membership
// reads run first, then per-schema relation listings fan out with bounded
// concurrency, and grants are read last.
func (c *Connector) Fetch(ctx context.Context) (connectors.ConnectorData, error) {
	data := connectors.ConnectorData{CualPrefix: c.CualPrefix()}

	roles, err := c.fetchRoles(ctx)
	if err != nil {
		return data, err
	}
	memberships, err := c.fetchMemberships(ctx)
	if err != nil {
		return data, err
	}
	memberOf := map[string]connectors.StringSet{}
	includes := map[string]connectors.StringSet{}
	for _, m := range memberships {
		if memberOf[m.Member] == nil {
			memberOf[m.Member] = connectors.StringSet{}
		}
		memberOf[m.Member].Add(m.Role)
		if includes[m.Role] == nil {
			includes[m.Role] = connectors.StringSet{}
		}
		includes[m.Role].Add(m.Member)
	}

	login := map[string]bool{}
	for _, r := range roles {
		login[r.Name] = r.CanLogin
		if r.CanLogin {
			user := connectors.RawUser{Name: r.Name, MemberOf: memberOf[r.Name]}
			if r.Email != "" {
				user.Identifiers = append(user.Identifiers, connectors.Email(r.Email))
			}
			data.Users = append(data.Users, user)
		}
	}
	for _, r := range roles {
		if r.CanLogin {
			continue
		}
		group := connectors.RawGroup{Name: r.Name, MemberOf: memberOf[r.Name]}
		members := includes[r.Name]
		if len(members) > 0 {
			group.IncludesUsers = connectors.StringSet{}
			group.IncludesGroups = connectors.StringSet{}
			for member := range members {
				if login[member] {
					group.IncludesUsers.Add(member)
				} else {
					group.IncludesGroups.Add(member)
				}
			}
		}
		data.Groups = append(data.Groups, group)
	}

	assets, err := c.fetchAssets(ctx)
	if err != nil {
		return data, err
	}
	data.Assets = assets

	policies, err := c.fetchGrants(ctx, login)
	if err != nil {
		return data, err
	}
	data.Policies = policies

	return data, nil
}

func (c *Connector) fetchRoles(ctx context.Context) ([]roleRow, error) {
	const query = `
		SELECT r.rolname, r.rolcanlogin,
		       COALESCE(s.setting, '') AS email
		FROM pg_catalog.pg_roles r
		LEFT JOIN LATERAL (
			SELECT split_part(unnest(r.rolconfig), '=', 2) AS setting
		) s ON s.setting LIKE '%@%'
		WHERE r.rolname NOT LIKE 'pg\_%'`
	var rows []roleRow
	if err := c.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.TransportErrorf(err, "listing warehouse roles")
	}
	return rows, nil
}

func (c *Connector) fetchMemberships(ctx context.Context) ([]membershipRow, error) {
	const query = `
		SELECT m.rolname AS member, r.rolname AS role
		FROM pg_catalog.pg_auth_members am
		JOIN pg_catalog.pg_roles m ON m.oid = am.member
		JOIN pg_catalog.pg_roles r ON r.oid = am.roleid
		WHERE r.rolname NOT LIKE 'pg\_%'`
	var rows []membershipRow
	if err := c.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.TransportErrorf(err, "listing role memberships")
	}
	return rows, nil
}

// fetchAssets builds the database -> schema -> relation hierarchy. One
// query lists schemas; relation listings fan out per schema.
func (c *Connector) fetchAssets(ctx context.Context) ([]connectors.RawAsset, error) {
	const schemaQuery = `
		SELECT catalog_name AS table_catalog, schema_name AS table_schema
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		  AND schema_name NOT LIKE 'pg\_%'`
	var schemas []schemaRow
	if err := c.db.SelectContext(ctx, &schemas, schemaQuery); err != nil {
		return nil, errors.TransportErrorf(err, "listing schemas")
	}

	var mu sync.Mutex
	var assets []connectors.RawAsset

	seenDB := map[string]bool{}
	for _, s := range schemas {
		if !seenDB[s.Catalog] {
			seenDB[s.Catalog] = true
			assets = append(assets, connectors.RawAsset{
				Cual:      c.cual(AssetTypeDatabase, s.Catalog),
				Name:      s.Catalog,
				AssetType: AssetTypeDatabase,
			})
		}
		assets = append(assets, connectors.RawAsset{
			Cual:      c.cual(AssetTypeSchema, s.Catalog, s.Schema),
			Name:      s.Catalog + "." + s.Schema,
			AssetType: AssetTypeSchema,
			ChildOf:   connectors.NewStringSet(c.cual(AssetTypeDatabase, s.Catalog).URI()),
		})
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(schemaConcurrency)
	for _, s := range schemas {
		s := s
		group.Go(func() error {
			const relationQuery = `
				SELECT table_catalog, table_schema, table_name, table_type
				FROM information_schema.tables
				WHERE table_catalog = $1 AND table_schema = $2`
			var relations []relationRow
			if err := c.db.SelectContext(ctx, &relations, relationQuery, s.Catalog, s.Schema); err != nil {
				return errors.TransportErrorf(err, "listing relations in %s.%s", s.Catalog, s.Schema)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range relations {
				assetType := AssetTypeTable
				if strings.EqualFold(r.Kind, "VIEW") {
					assetType = AssetTypeView
				}
				assets = append(assets, connectors.RawAsset{
					Cual:      c.cual(assetType, r.Catalog, r.Schema, r.Name),
					Name:      r.Catalog + "." + r.Schema + "." + r.Name,
					AssetType: assetType,
					ChildOf:   connectors.NewStringSet(c.cual(AssetTypeSchema, r.Catalog, r.Schema).URI()),
				})
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Cual.URI() < assets[j].Cual.URI() })
	return assets, nil
}

// fetchGrants folds table grants into one policy per grantee. It returns
// policies only; no effective-permission matrix is built here.
func (c *Connector) fetchGrants(ctx context.Context, login map[string]bool) ([]connectors.RawPolicy, error) {
	const query = `
		SELECT grantee, table_catalog, table_schema, table_name, privilege_type
		FROM information_schema.role_table_grants
		WHERE grantee NOT IN ('PUBLIC')
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')`
	var rows []grantRow
	if err := c.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.TransportErrorf(err, "listing grants")
	}

	type policyKey struct{ grantee, cual string }
	privileges := map[policyKey]connectors.StringSet{}
	for _, row := range rows {
		cual := c.cual(AssetTypeTable, row.Catalog, row.Schema, row.Table).URI()
		key := policyKey{grantee: row.Grantee, cual: cual}
		if privileges[key] == nil {
			privileges[key] = connectors.StringSet{}
		}
		privileges[key].Add(row.Privilege)
	}

	byGrantee := map[string]map[string]connectors.StringSet{}
	for key, privs := range privileges {
		if byGrantee[key.grantee] == nil {
			byGrantee[key.grantee] = map[string]connectors.StringSet{}
		}
		byGrantee[key.grantee][key.cual] = privs
	}

	grantees := make([]string, 0, len(byGrantee))
	for grantee := range byGrantee {
		grantees = append(grantees, grantee)
	}
	sort.Strings(grantees)

	var policies []connectors.RawPolicy
	for _, grantee := range grantees {
		assets := byGrantee[grantee]
		cuals := make([]string, 0, len(assets))
		allPrivileges := connectors.StringSet{}
		for cual, privs := range assets {
			cuals = append(cuals, cual)
			allPrivileges = allPrivileges.Union(privs)
		}
		sort.Strings(cuals)
		policy := connectors.RawPolicy{
			Name:          grantPolicyName(grantee),
			Privileges:    allPrivileges,
			GovernsAssets: connectors.NewStringSet(cuals...),
		}
		if login[grantee] {
			policy.GrantedToUsers = connectors.NewStringSet(grantee)
		} else {
			policy.GrantedToGroups = connectors.NewStringSet(grantee)
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

func grantPolicyName(grantee string) string {
	return "grants-" + grantee
}

func (c *Connector) cual(assetType connectors.AssetType, segments ...string) connectors.Cual {
	return connectors.AssembleCual(c.CualPrefix(), segments, assetType)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// qualifiedRelation renders a dotted, quoted identifier for GRANT
// statements from every segment of the asset path it is given.
func qualifiedRelation(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, quoteIdent(s))
	}
	return strings.Join(parts, ".")
}

func fmtGrant(privileges []string, relation, grantee string) string {
	return fmt.Sprintf("GRANT %s ON %s TO %s", strings.Join(privileges, ", "), relation, quoteIdent(grantee))
}

func fmtRevoke(privileges []string, relation, grantee string) string {
	return fmt.Sprintf("REVOKE %s ON %s FROM %s", strings.Join(privileges, ", "), relation, quoteIdent(grantee))
}
