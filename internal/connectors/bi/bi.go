package bi

import (
	"context"
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// Asset types the BI server declares.
const (
	AssetTypeProject  connectors.AssetType = "project"
	AssetTypeWorkbook connectors.AssetType = "workbook"
)

// Workbook capabilities the server accepts.
var workbookCapabilities = connectors.NewStringSet(
	"Read", "Filter", "ViewComments", "AddComment", "ExportImage", "ExportData",
	"ShareView", "ViewUnderlyingData", "WebAuthoring", "Write", "ExportXml",
	"ChangeHierarchy", "Delete", "ChangePermissions",
)

// Site roles with blanket behavior.
const (
	siteRoleServerAdmin = "ServerAdministrator"
	siteRoleSiteAdmin   = "SiteAdministrator"
	siteRoleUnlicensed  = "Unlicensed"
)

// Config wires one BI connector.
type Config struct {
	Namespace connectors.Namespace
	// Server is the host identifier namespacing CUALs ("bi://<server>").
	Server  string
	BaseURL string
	Token   string
	// RequestsPerSecond throttles the REST client.
	RequestsPerSecond int
}

// Connector implements fetch and apply against one BI server.
type Connector struct {
	cfg    Config
	client *Client
}

// New builds the connector.
func New(cfg Config) *Connector {
	return &Connector{cfg: cfg, client: NewClient(cfg.BaseURL, cfg.Token, cfg.RequestsPerSecond)}
}

// Namespace implements the fetch and plan interfaces.
func (c *Connector) Namespace() connectors.Namespace { return c.cfg.Namespace }

// CualPrefix is the prefix namespacing this server's assets.
func (c *Connector) CualPrefix() string { return "bi://" + c.cfg.Server }

// Manifest declares which privileges each asset type accepts. The server
// nests groups from the warehouse through identity sync, so cross-connector
// membership is legal here.
func (c *Connector) Manifest() yamlconfig.ConnectorManifest {
	return yamlconfig.ConnectorManifest{
		Namespace: c.cfg.Namespace,
		AllowedPrivileges: map[connectors.AssetType]connectors.StringSet{
			AssetTypeProject:  connectors.NewStringSet("Read", "Write", "ProjectLeader"),
			AssetTypeWorkbook: workbookCapabilities,
		},
		NestedGroups: true,
	}
}

// Fetch pulls the server's metadata and resolves effective permissions.
func (c *Connector) Fetch(ctx context.Context) (connectors.ConnectorData, error) {
	data := connectors.ConnectorData{CualPrefix: c.CualPrefix()}

	users, err := c.client.listUsers(ctx)
	if err != nil {
		return data, err
	}
	groups, err := c.client.listGroups(ctx)
	if err != nil {
		return data, err
	}
	projects, err := c.client.listProjects(ctx)
	if err != nil {
		return data, err
	}
	workbooks, err := c.client.listWorkbooks(ctx)
	if err != nil {
		return data, err
	}

	env := newEnvironment(c, users, groups, projects, workbooks)

	for _, u := range users {
		raw := connectors.RawUser{
			Name:     u.Name,
			Metadata: map[string]string{"bi::site_role": u.SiteRole},
			MemberOf: env.groupsOfUser[u.ID],
		}
		if u.Email != "" {
			raw.Identifiers = append(raw.Identifiers, connectors.Email(u.Email))
		}
		data.Users = append(data.Users, raw)
	}

	for _, g := range groups {
		raw := connectors.RawGroup{Name: g.Name, IncludesUsers: connectors.StringSet{}}
		for _, uid := range g.UserIDs {
			if name, ok := env.userName[uid]; ok {
				raw.IncludesUsers.Add(name)
			}
		}
		data.Groups = append(data.Groups, raw)
	}

	data.Assets = env.assets()
	data.AssetReferences = env.assetReferences()

	policies, matrix, err := c.fetchPermissions(ctx, env, workbooks)
	if err != nil {
		return data, err
	}
	data.Policies = policies
	data.EffectivePermissions = matrix

	return data, nil
}

// environment indexes one fetch's wire records for cross-referencing.
type environment struct {
	conn *Connector

	userName     map[string]string // id -> local name
	groupName    map[string]string
	projects     map[string]apiProject
	workbooks    []apiWorkbook
	groupsOfUser map[string]connectors.StringSet
	siteRole     map[string]string // user id -> role
}

func newEnvironment(c *Connector, users []apiUser, groups []apiGroup, projects []apiProject, workbooks []apiWorkbook) *environment {
	env := &environment{
		conn:         c,
		userName:     map[string]string{},
		groupName:    map[string]string{},
		projects:     map[string]apiProject{},
		workbooks:    workbooks,
		groupsOfUser: map[string]connectors.StringSet{},
		siteRole:     map[string]string{},
	}
	for _, u := range users {
		env.userName[u.ID] = u.Name
		env.siteRole[u.ID] = u.SiteRole
	}
	for _, g := range groups {
		env.groupName[g.ID] = g.Name
		for _, uid := range g.UserIDs {
			if env.groupsOfUser[uid] == nil {
				env.groupsOfUser[uid] = connectors.StringSet{}
			}
			env.groupsOfUser[uid].Add(g.Name)
		}
	}
	for _, p := range projects {
		env.projects[p.ID] = p
	}
	return env
}

// projectPath walks the project chain top-down.
func (e *environment) projectPath(projectID string) []string {
	var reversed []string
	for id := projectID; id != ""; {
		p, ok := e.projects[id]
		if !ok {
			break
		}
		reversed = append(reversed, p.Name)
		id = p.ParentID
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

func (e *environment) projectCual(projectID string) connectors.Cual {
	return connectors.AssembleCual(e.conn.CualPrefix(), e.projectPath(projectID), AssetTypeProject)
}

func (e *environment) workbookCual(w apiWorkbook) connectors.Cual {
	path := append(e.projectPath(w.ProjectID), w.Name)
	return connectors.AssembleCual(e.conn.CualPrefix(), path, AssetTypeWorkbook)
}

func (e *environment) assets() []connectors.RawAsset {
	var out []connectors.RawAsset
	for _, p := range e.projects {
		asset := connectors.RawAsset{
			Cual:      e.projectCual(p.ID),
			Name:      p.Name,
			AssetType: AssetTypeProject,
		}
		if p.ParentID != "" {
			asset.ChildOf = connectors.NewStringSet(e.projectCual(p.ParentID).URI())
		}
		out = append(out, asset)
	}
	for _, w := range e.workbooks {
		asset := connectors.RawAsset{
			Cual:      e.workbookCual(w),
			Name:      w.Name,
			AssetType: AssetTypeWorkbook,
			ChildOf:   connectors.NewStringSet(e.projectCual(w.ProjectID).URI()),
		}
		if len(w.UpstreamTables) > 0 {
			asset.DerivedFrom = connectors.NewStringSet(w.UpstreamTables...)
		}
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cual.URI() < out[j].Cual.URI() })
	return out
}

// assetReferences links workbooks to the warehouse tables they read:
// assets owned by another connector, contributed as edges only.
func (e *environment) assetReferences() []connectors.RawAssetReference {
	seen := connectors.StringSet{}
	var out []connectors.RawAssetReference
	for _, w := range e.workbooks {
		for _, upstream := range w.UpstreamTables {
			if seen.Contains(upstream) {
				continue
			}
			seen.Add(upstream)
			out = append(out, connectors.RawAssetReference{
				Cual:      connectors.NewCual(upstream),
				DerivedTo: connectors.NewStringSet(e.workbookCual(w).URI()),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cual.URI() < out[j].Cual.URI() })
	return out
}
