// Package sqlrow maps posts onto the relational posts table shared by the
// SQL repositories.
package sqlrow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/board-archiver/internal/archive"
)

// DefaultTable is the table posts are written to.
const DefaultTable = "posts"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTable rejects table names that cannot be interpolated safely.
func ValidateTable(table string) error {
	if !validTableName.MatchString(table) {
		return archive.ErrConfiguration.New("invalid table name %q", table)
	}
	return nil
}

type column struct {
	name    string
	integer bool
	notNull bool
}

var columns = []column{
	{name: "no", integer: true, notNull: true},
	{name: "resto", integer: true, notNull: true},
	{name: "sticky", integer: true, notNull: true},
	{name: "closed", integer: true, notNull: true},
	{name: "now", notNull: true},
	{name: "time", integer: true, notNull: true},
	{name: "name", notNull: true},
	{name: "trip"},
	{name: "id"},
	{name: "capcode"},
	{name: "country"},
	{name: "country_name"},
	{name: "board_flag"},
	{name: "flag_name"},
	{name: "sub"},
	{name: "com"},
	{name: "tim", integer: true},
	{name: "filename"},
	{name: "ext"},
	{name: "fsize", integer: true},
	{name: "md5"},
	{name: "w", integer: true},
	{name: "h", integer: true},
	{name: "tn_w", integer: true},
	{name: "tn_h", integer: true},
	{name: "filedeleted", integer: true, notNull: true},
	{name: "spoiler", integer: true, notNull: true},
	{name: "custom_spoiler", integer: true},
	{name: "replies", integer: true},
	{name: "images", integer: true},
	{name: "bumplimit", integer: true, notNull: true},
	{name: "imagelimit", integer: true, notNull: true},
	{name: "tag"},
	{name: "semantic_url"},
	{name: "since4pass", integer: true},
	{name: "unique_ips", integer: true},
	{name: "m_img", integer: true, notNull: true},
	{name: "archived", integer: true, notNull: true},
	{name: "archived_on", integer: true},
	{name: "board", notNull: true},
}

// refreshed lists the columns an upsert overwrites on an existing row.
var refreshed = []string{
	"filedeleted",
	"replies",
	"images",
	"bumplimit",
	"imagelimit",
	"unique_ips",
	"archived",
	"archived_on",
}

// Dialect captures the syntax differences between SQL backends.
type Dialect struct {
	Placeholder func(n int) string
	IntegerType string
	TextType    string
}

// Postgres uses numbered placeholders.
var Postgres = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	IntegerType: "BIGINT",
	TextType:    "TEXT",
}

// SQLite uses positional placeholders.
var SQLite = Dialect{
	Placeholder: func(int) string { return "?" },
	IntegerType: "INTEGER",
	TextType:    "TEXT",
}

// Columns returns the column names in insert order.
func Columns() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.name
	}
	return out
}

// Values returns the post's values in the order of Columns.
func Values(p archive.Post) []any {
	return []any{
		p.No, p.Resto, p.Sticky, p.Closed, p.Now, p.Time, p.Name, p.Trip,
		p.ID, p.Capcode, p.Country, p.CountryName, p.BoardFlag, p.FlagName, p.Subject, p.Comment,
		p.Tim, p.Filename, p.Ext, p.Fsize, p.MD5, p.W, p.H, p.TnW,
		p.TnH, p.FileDeleted, p.Spoiler, p.CustomSpoiler, p.Replies, p.Images, p.BumpLimit, p.ImageLimit,
		p.Tag, p.SemanticURL, p.Since4Pass, p.UniqueIPs, p.MobileImage, p.Archived, p.ArchivedOn, p.Board,
	}
}

// UpsertStatement builds the single-statement insert-or-refresh for table.
// unique_ips keeps its stored value when the new observation omits it.
func (d Dialect) UpsertStatement(table string) string {
	names := Columns()
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = d.Placeholder(i + 1)
	}
	sets := make([]string, len(refreshed))
	for i, name := range refreshed {
		if name == "unique_ips" {
			sets[i] = fmt.Sprintf("unique_ips = COALESCE(excluded.unique_ips, %s.unique_ips)", table)
			continue
		}
		sets[i] = fmt.Sprintf("%s = excluded.%s", name, name)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (board, no) DO UPDATE SET %s",
		table,
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)
}

// CreateTableStatement builds the idempotent DDL for table.
func (d Dialect) CreateTableStatement(table string) string {
	defs := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		typ := d.TextType
		if c.integer {
			typ = d.IntegerType
		}
		def := c.name + " " + typ
		if c.notNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY (board, no)")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
}
