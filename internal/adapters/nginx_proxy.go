package adapters

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
	"storagectl/internal/types"
)

// NginxProxy manages a site in the Debian sites-available/sites-enabled
// layout.
type NginxProxy struct {
	Runner     ports.CommandRunnerPort
	SitesDir   string
	EnabledDir string
}

func NewNginxProxy(runner ports.CommandRunnerPort, sitesDir string, enabledDir string) NginxProxy {
	return NginxProxy{Runner: runner, SitesDir: sitesDir, EnabledDir: enabledDir}
}

func (p NginxProxy) WriteSiteConfig(ctx context.Context, name string, config string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	available, enabled, err := p.paths(name)
	if err != nil {
		return false, err
	}
	changed, err := shared.WriteFileIfChanged(available, []byte(config), 0o644)
	if err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write site config").
			WithCause(err)
	}
	target, err := os.Readlink(enabled)
	if err == nil && target == available {
		return changed, nil
	}
	if _, err := shared.RemoveIfExists(enabled); err != nil {
		return changed, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to replace site link").
			WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(enabled), 0o755); err != nil {
		return changed, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create sites-enabled directory").
			WithCause(err)
	}
	if err := os.Symlink(available, enabled); err != nil {
		return changed, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to enable site").
			WithCause(err)
	}
	return true, nil
}

func (p NginxProxy) RemoveSiteConfig(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	available, enabled, err := p.paths(name)
	if err != nil {
		return err
	}
	for _, path := range []string{enabled, available} {
		if _, err := shared.RemoveIfExists(path); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to remove site config").
				WithCause(err)
		}
	}
	return nil
}

// TestConfig runs `nginx -t`; a rejected configuration is false, not an error.
func (p NginxProxy) TestConfig(ctx context.Context) (bool, error) {
	result, err := p.Runner.Run(ctx, "nginx", []string{"-t"}, types.RunOptions{})
	if err != nil {
		return false, err
	}
	return result.Success(), nil
}

func (p NginxProxy) Reload(ctx context.Context) error {
	_, err := runChecked(ctx, p.Runner, types.RunOptions{}, "systemctl", "reload", "nginx")
	return err
}

func (p NginxProxy) paths(name string) (string, string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.ContainsRune(trimmed, filepath.Separator) {
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid site name %q", name))
	}
	if strings.TrimSpace(p.SitesDir) == "" || strings.TrimSpace(p.EnabledDir) == "" {
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("nginx site directories are not configured")
	}
	return filepath.Join(p.SitesDir, trimmed), filepath.Join(p.EnabledDir, trimmed), nil
}

// RenderSite proxies the dashboard and API to the backend.
func RenderSite(cfg types.StackConfig) string {
	upstream := cfg.BackendURL
	if parsed, err := url.Parse(cfg.BackendURL); err == nil && parsed.Host != "" {
		upstream = parsed.Scheme + "://" + parsed.Host
	}
	var b strings.Builder
	b.WriteString("server {\n")
	fmt.Fprintf(&b, "    listen %d;\n", cfg.ProxyPort)
	fmt.Fprintf(&b, "    server_name %s;\n\n", cfg.ServerName)
	b.WriteString("    client_max_body_size 16m;\n\n")
	b.WriteString("    location / {\n")
	fmt.Fprintf(&b, "        proxy_pass %s;\n", upstream)
	b.WriteString("        proxy_http_version 1.1;\n")
	b.WriteString("        proxy_set_header Host $host;\n")
	b.WriteString("        proxy_set_header X-Real-IP $remote_addr;\n")
	b.WriteString("        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
	b.WriteString("        proxy_set_header X-Forwarded-Proto $scheme;\n")
	b.WriteString("    }\n\n")
	b.WriteString("    location /socket.io/ {\n")
	fmt.Fprintf(&b, "        proxy_pass %s;\n", upstream)
	b.WriteString("        proxy_http_version 1.1;\n")
	b.WriteString("        proxy_set_header Upgrade $http_upgrade;\n")
	b.WriteString("        proxy_set_header Connection \"upgrade\";\n")
	b.WriteString("        proxy_set_header Host $host;\n")
	b.WriteString("    }\n")
	b.WriteString("}\n")
	return b.String()
}

var _ ports.ReverseProxyPort = NginxProxy{}
