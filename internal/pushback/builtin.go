package pushback

// DefaultExcludes are always applied first, before the global ignore file.
var DefaultExcludes = []string{
	"/.git/",
	"/.hg/",
	"/.svn/",
	"/.DS_Store",
	"/.idea/",
	"/.vscode/",
	"/.cache/",
	"/.mypy_cache/",
	"/.pytest_cache/",
	"/__pycache__/",
	"/*.pyc",
	"/.tox/",
	"/.venv/",
	"/venv/",
	"/env/",
	"/.poetry/",
	"/.poetry-cache/",
	"/*.egg-info/",
	"/dist/",
	"/build/",
	"/coverage/",
	"/node_modules/",
	"/.pnpm-store/",
	"/.yarn/*",
	"/.eslintcache",
	"/.turbo/",
	"/.next/",
	"/.vercel/",
	"/.out/",
	"/target/",
	"/Cargo.lock",
	"/*.log",
}
