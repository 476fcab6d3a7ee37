package database

// Migrations returns the SQL migrations for the account database, in order.
func Migrations() []Migration {
	return []Migration{
		{
			Name: "001_auth_schema.sql",
			SQL:  authSchemaSQL,
		},
		{
			Name: "002_account_schema.sql",
			SQL:  accountSchemaSQL,
		},
	}
}

const authSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS auth;

CREATE TABLE IF NOT EXISTS auth.principals (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  email TEXT UNIQUE NOT NULL,
  encrypted_password TEXT NOT NULL,
  email_confirmed_at TIMESTAMPTZ,
  recovery_token TEXT DEFAULT '',
  recovery_sent_at TIMESTAMPTZ,
  raw_user_meta_data JSONB DEFAULT '{}'::jsonb,
  last_sign_in_at TIMESTAMPTZ,
  banned_until TIMESTAMPTZ,
  created_at TIMESTAMPTZ DEFAULT NOW(),
  updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_auth_principals_email ON auth.principals(email);

CREATE TABLE IF NOT EXISTS auth.sessions (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  principal_id UUID NOT NULL REFERENCES auth.principals(id) ON DELETE CASCADE,
  user_agent TEXT,
  ip TEXT,
  created_at TIMESTAMPTZ DEFAULT NOW(),
  updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_auth_sessions_principal ON auth.sessions(principal_id);

CREATE TABLE IF NOT EXISTS auth.refresh_tokens (
  id BIGSERIAL PRIMARY KEY,
  token TEXT UNIQUE NOT NULL,
  principal_id UUID NOT NULL REFERENCES auth.principals(id) ON DELETE CASCADE,
  session_id UUID REFERENCES auth.sessions(id) ON DELETE CASCADE,
  parent TEXT,
  revoked BOOLEAN DEFAULT FALSE,
  expires_at TIMESTAMPTZ DEFAULT (NOW() + INTERVAL '7 days'),
  created_at TIMESTAMPTZ DEFAULT NOW(),
  updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_auth_refresh_tokens_token ON auth.refresh_tokens(token);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_tokens_session ON auth.refresh_tokens(session_id);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_tokens_parent ON auth.refresh_tokens(parent);

DO $$
BEGIN
  IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'anon') THEN
    CREATE ROLE anon NOLOGIN;
  END IF;
  IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'authenticated') THEN
    CREATE ROLE authenticated NOLOGIN;
  END IF;
  IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = 'service_role') THEN
    CREATE ROLE service_role NOLOGIN BYPASSRLS;
  END IF;
END $$;

GRANT USAGE ON SCHEMA public TO anon, authenticated, service_role;
GRANT ALL ON ALL TABLES IN SCHEMA public TO anon, authenticated, service_role;
GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO anon, authenticated, service_role;
GRANT ALL ON ALL ROUTINES IN SCHEMA public TO anon, authenticated, service_role;

ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO anon, authenticated, service_role;
ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO anon, authenticated, service_role;
ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON ROUTINES TO anon, authenticated, service_role;

GRANT USAGE ON SCHEMA auth TO authenticated, service_role;
GRANT ALL ON ALL TABLES IN SCHEMA auth TO service_role;
GRANT ALL ON ALL SEQUENCES IN SCHEMA auth TO service_role;
GRANT EXECUTE ON ALL FUNCTIONS IN SCHEMA auth TO authenticated;

CREATE OR REPLACE FUNCTION auth.uid() RETURNS UUID AS $$
  SELECT NULLIF(current_setting('request.jwt.claim.sub', true), '')::UUID;
$$ LANGUAGE sql STABLE;

CREATE OR REPLACE FUNCTION auth.role() RETURNS TEXT AS $$
  SELECT NULLIF(current_setting('request.jwt.claim.role', true), '');
$$ LANGUAGE sql STABLE;

CREATE OR REPLACE FUNCTION auth.jwt() RETURNS JSONB AS $$
  SELECT NULLIF(current_setting('request.jwt.claims', true), '')::JSONB;
$$ LANGUAGE sql STABLE;

-- Enable RLS on auth tables to prevent cross-principal access
ALTER TABLE auth.principals ENABLE ROW LEVEL SECURITY;
ALTER TABLE auth.sessions ENABLE ROW LEVEL SECURITY;
ALTER TABLE auth.refresh_tokens ENABLE ROW LEVEL SECURITY;

-- auth.principals: authenticated principals can only read their own row
CREATE POLICY principals_self_read ON auth.principals FOR SELECT
  TO authenticated USING (id = auth.uid());
CREATE POLICY principals_self_update ON auth.principals FOR UPDATE
  TO authenticated USING (id = auth.uid());

-- auth.sessions: principals can only see their own sessions
CREATE POLICY sessions_self_read ON auth.sessions FOR SELECT
  TO authenticated USING (principal_id = auth.uid());
CREATE POLICY sessions_self_delete ON auth.sessions FOR DELETE
  TO authenticated USING (principal_id = auth.uid());

-- auth.refresh_tokens: principals can only see their own tokens
CREATE POLICY refresh_tokens_self_read ON auth.refresh_tokens FOR SELECT
  TO authenticated USING (principal_id = auth.uid());

-- service_role bypasses RLS (BYPASSRLS is set on the role)
-- anon has no access to auth tables (no GRANT, no policies)
`

const accountSchemaSQL = `
CREATE TABLE IF NOT EXISTS public.organizations (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL,
  slug TEXT UNIQUE NOT NULL,
  industry TEXT DEFAULT '',
  company_size TEXT DEFAULT '',
  created_at TIMESTAMPTZ DEFAULT NOW(),
  updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS public.profiles (
  id UUID PRIMARY KEY REFERENCES auth.principals(id) ON DELETE CASCADE,
  email TEXT UNIQUE NOT NULL,
  first_name TEXT DEFAULT '',
  last_name TEXT DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user'
    CHECK (role IN ('user', 'org_admin', 'manager', 'super_admin')),
  organization_id UUID REFERENCES public.organizations(id) ON DELETE SET NULL,
  email_verified BOOLEAN NOT NULL DEFAULT FALSE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ DEFAULT NOW(),
  updated_at TIMESTAMPTZ DEFAULT NOW(),
  CONSTRAINT super_admin_has_no_org CHECK (role <> 'super_admin' OR organization_id IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_profiles_organization ON public.profiles(organization_id);
CREATE INDEX IF NOT EXISTS idx_profiles_role ON public.profiles(role);

CREATE TABLE IF NOT EXISTS public.analytics (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  organization_id UUID REFERENCES public.organizations(id) ON DELETE CASCADE,
  metric_type TEXT NOT NULL,
  metric_value NUMERIC NOT NULL DEFAULT 0,
  metadata JSONB DEFAULT '{}'::jsonb,
  recorded_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_analytics_org_metric ON public.analytics(organization_id, metric_type);
CREATE INDEX IF NOT EXISTS idx_analytics_recorded ON public.analytics(recorded_at);

CREATE TABLE IF NOT EXISTS public.audit_log (
  id BIGSERIAL PRIMARY KEY,
  actor_id UUID,
  action TEXT NOT NULL,
  resource_type TEXT DEFAULT '',
  resource_id TEXT DEFAULT '',
  ip TEXT DEFAULT '',
  user_agent TEXT DEFAULT '',
  metadata JSONB DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON public.audit_log(actor_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON public.audit_log(created_at);

-- Role and membership lookups for policies. SECURITY DEFINER so the profile
-- read inside the policy does not recurse into the profiles policies.
CREATE OR REPLACE FUNCTION public.app_role() RETURNS TEXT AS $$
  SELECT role FROM public.profiles WHERE id = auth.uid();
$$ LANGUAGE sql STABLE SECURITY DEFINER;

CREATE OR REPLACE FUNCTION public.app_org_id() RETURNS UUID AS $$
  SELECT organization_id FROM public.profiles WHERE id = auth.uid();
$$ LANGUAGE sql STABLE SECURITY DEFINER;

ALTER TABLE public.profiles ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.organizations ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.analytics ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.audit_log ENABLE ROW LEVEL SECURITY;

-- profiles: self access
CREATE POLICY profiles_self_select ON public.profiles FOR SELECT
  TO authenticated USING (id = auth.uid());
CREATE POLICY profiles_self_update ON public.profiles FOR UPDATE
  TO authenticated USING (id = auth.uid()) WITH CHECK (id = auth.uid());

-- profiles: super admin full access
CREATE POLICY profiles_super_admin_all ON public.profiles FOR ALL
  TO authenticated
  USING (public.app_role() = 'super_admin')
  WITH CHECK (public.app_role() = 'super_admin');

-- profiles: org admins and managers see their own organization
CREATE POLICY profiles_org_select ON public.profiles FOR SELECT
  TO authenticated USING (
    public.app_role() IN ('org_admin', 'manager')
    AND organization_id IS NOT NULL
    AND organization_id = public.app_org_id()
  );

-- organizations: members read their own org, super admin reads and writes all
CREATE POLICY organizations_member_select ON public.organizations FOR SELECT
  TO authenticated USING (id = public.app_org_id());
CREATE POLICY organizations_super_admin_all ON public.organizations FOR ALL
  TO authenticated
  USING (public.app_role() = 'super_admin')
  WITH CHECK (public.app_role() = 'super_admin');

-- analytics: org-scoped for members, unrestricted for super admin
CREATE POLICY analytics_org_all ON public.analytics FOR ALL
  TO authenticated
  USING (
    public.app_role() = 'super_admin'
    OR (organization_id IS NOT NULL AND organization_id = public.app_org_id())
  )
  WITH CHECK (
    public.app_role() = 'super_admin'
    OR (organization_id IS NOT NULL AND organization_id = public.app_org_id())
  );

-- audit_log: RLS enabled with no policies, so only service_role can touch it

-- Administrative profile fields are writable only through the service path
-- or by a super admin; a self-update cannot escalate its own role or move
-- itself between organizations.
CREATE OR REPLACE FUNCTION public.profiles_guard_admin_fields() RETURNS TRIGGER AS $$
BEGIN
  IF auth.role() = 'authenticated' AND COALESCE(public.app_role(), '') <> 'super_admin' THEN
    IF NEW.role IS DISTINCT FROM OLD.role
       OR NEW.organization_id IS DISTINCT FROM OLD.organization_id
       OR NEW.is_active IS DISTINCT FROM OLD.is_active
       OR NEW.email IS DISTINCT FROM OLD.email
       OR NEW.email_verified IS DISTINCT FROM OLD.email_verified THEN
      RAISE EXCEPTION 'permission denied: administrative profile fields are read-only';
    END IF;
  END IF;
  RETURN NEW;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

DROP TRIGGER IF EXISTS profiles_guard_admin_fields ON public.profiles;
CREATE TRIGGER profiles_guard_admin_fields BEFORE UPDATE ON public.profiles
  FOR EACH ROW EXECUTE FUNCTION public.profiles_guard_admin_fields();
`
