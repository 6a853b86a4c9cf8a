package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates tables, indexes, change triggers and row-level
// security policies if they don't exist. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, stmt := range schemaStatements(tables) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w\n%s", err, stmt)
		}
	}
	return nil
}

// DropTables drops all tables in reverse dependency order, along with the
// change trigger function.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range []string{tables.ProjectViews, tables.Comments, tables.Projects, tables.Profiles} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := pool.Exec(ctx, "DROP FUNCTION IF EXISTS "+notifyFunction(tables)+"() CASCADE"); err != nil {
		return fmt.Errorf("drop notify function: %w", err)
	}
	return nil
}

func notifyFunction(tables *TableNames) string {
	return tables.Prefix + "biocloud_notify_change"
}

func schemaStatements(t *TableNames) []string {
	p := t.Prefix
	fn := notifyFunction(t)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t.Profiles + ` (
			id UUID PRIMARY KEY,
			email TEXT,
			full_name TEXT,
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + t.Projects + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner_id UUID NOT NULL,
			title TEXT NOT NULL,
			file_url TEXT NOT NULL,
			file_path TEXT NOT NULL DEFAULT '',
			file_extension TEXT NOT NULL DEFAULT '',
			is_public BOOLEAN NOT NULL DEFAULT TRUE,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + t.Comments + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			project_id UUID NOT NULL REFERENCES ` + t.Projects + `(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + t.ProjectViews + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			project_id UUID NOT NULL REFERENCES ` + t.Projects + `(id) ON DELETE CASCADE,
			viewer_id UUID,
			viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p + `projects_owner_created ON ` + t.Projects + `(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p + `comments_project_created ON ` + t.Comments + `(project_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + p + `project_views_project ON ` + t.ProjectViews + `(project_id)`,

		// Row changes are published through NOTIFY, which Postgres delivers at
		// commit and in commit order. Large text columns are stripped to stay
		// under the 8000 byte payload limit; consumers re-fetch.
		`CREATE OR REPLACE FUNCTION ` + fn + `() RETURNS trigger AS $$
		DECLARE
			payload jsonb;
		BEGIN
			payload := jsonb_build_object(
				'table', TG_TABLE_NAME,
				'type', TG_OP,
				'commit_time', now(),
				'new', CASE WHEN TG_OP IN ('INSERT', 'UPDATE') THEN to_jsonb(NEW) - 'notes' - 'content' END,
				'old', CASE WHEN TG_OP IN ('UPDATE', 'DELETE') THEN to_jsonb(OLD) - 'notes' - 'content' END
			);
			PERFORM pg_notify('` + t.ChangeChannel + `', payload::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,
	}

	for _, table := range []string{t.Projects, t.Comments} {
		trigger := table + "_notify_change"
		stmts = append(stmts,
			`DROP TRIGGER IF EXISTS `+trigger+` ON `+table,
			`CREATE TRIGGER `+trigger+`
				AFTER INSERT OR UPDATE OR DELETE ON `+table+`
				FOR EACH ROW EXECUTE FUNCTION `+fn+`()`,
		)
	}

	return append(stmts, rowLevelSecurity(t))
}

// rowLevelSecurity mirrors the repository predicates as RLS policies for
// clients that reach the database directly with a user JWT. Applied only
// where Supabase's auth.uid() exists; the server's own role bypasses RLS.
func rowLevelSecurity(t *TableNames) string {
	visibleProject := `EXISTS (SELECT 1 FROM ` + t.Projects + ` p WHERE p.id = project_id AND (p.is_public OR p.owner_id = auth.uid()))`
	ownedProject := `EXISTS (SELECT 1 FROM ` + t.Projects + ` p WHERE p.id = project_id AND p.owner_id = auth.uid())`

	policies := []struct {
		table  string
		name   string
		clause string
	}{
		{t.Profiles, "profiles_read", `FOR SELECT USING (true)`},
		{t.Profiles, "profiles_write_own", `FOR ALL USING (id = auth.uid()) WITH CHECK (id = auth.uid())`},
		{t.Projects, "projects_read_visible", `FOR SELECT USING (is_public OR owner_id = auth.uid())`},
		{t.Projects, "projects_insert_own", `FOR INSERT WITH CHECK (owner_id = auth.uid())`},
		{t.Projects, "projects_update_own", `FOR UPDATE USING (owner_id = auth.uid()) WITH CHECK (owner_id = auth.uid())`},
		{t.Projects, "projects_delete_own", `FOR DELETE USING (owner_id = auth.uid())`},
		{t.Comments, "comments_read_visible", `FOR SELECT USING (` + visibleProject + `)`},
		{t.Comments, "comments_insert_visible", `FOR INSERT WITH CHECK (user_id = auth.uid() AND ` + visibleProject + `)`},
		{t.Comments, "comments_delete_author_or_owner", `FOR DELETE USING (user_id = auth.uid() OR ` + ownedProject + `)`},
		{t.ProjectViews, "project_views_insert_visible", `FOR INSERT WITH CHECK (` + visibleProject + `)`},
		{t.ProjectViews, "project_views_read_owner", `FOR SELECT USING (` + ownedProject + `)`},
	}

	body := ""
	for _, table := range []string{t.Profiles, t.Projects, t.Comments, t.ProjectViews} {
		body += fmt.Sprintf("\t\tEXECUTE %s;\n", quoteLiteral("ALTER TABLE "+table+" ENABLE ROW LEVEL SECURITY"))
	}
	for _, pol := range policies {
		name := t.Prefix + pol.name
		body += fmt.Sprintf("\t\tEXECUTE %s;\n", quoteLiteral("DROP POLICY IF EXISTS "+name+" ON "+pol.table))
		body += fmt.Sprintf("\t\tEXECUTE %s;\n", quoteLiteral("CREATE POLICY "+name+" ON "+pol.table+" "+pol.clause))
	}

	return `DO $rls$
	BEGIN
		IF EXISTS (
			SELECT 1 FROM pg_proc f
			JOIN pg_namespace n ON n.oid = f.pronamespace
			WHERE n.nspname = 'auth' AND f.proname = 'uid'
		) THEN
` + body + `		END IF;
	END
	$rls$`
}

// quoteLiteral quotes s as a SQL string literal.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}
