package knowledge

import "time"

type builtinItem struct {
	command     string
	displayName string
	description string
	category    Category
}

var builtinCatalog = []builtinItem{
	// Container tooling
	{"com.docker.backend", "Docker Desktop", "Docker container runtime and management", CategoryInfrastructure},
	{"orbstack", "OrbStack", "Fast Docker and Linux VM runtime for macOS", CategoryInfrastructure},
	{"OrbStack Helper", "OrbStack Helper", "OrbStack background service", CategoryInfrastructure},

	// Databases
	{"postgres", "PostgreSQL Database", "PostgreSQL relational database server", CategoryDatabase},
	{"mysqld", "MySQL Database", "MySQL relational database server", CategoryDatabase},
	{"mongod", "MongoDB", "MongoDB NoSQL document database", CategoryDatabase},

	// Caches
	{"redis-server", "Redis Cache", "Redis in-memory data structure store", CategoryCache},
	{"memcached", "Memcached", "Distributed memory object caching system", CategoryCache},

	// Web servers and proxies
	{"nginx", "NGINX", "High-performance web server and reverse proxy", CategoryProxy},
	{"httpd", "Apache HTTP Server", "Apache web server", CategoryProxy},
	{"caddy", "Caddy", "Modern web server with automatic HTTPS", CategoryProxy},

	// Language runtimes
	{"node", "Node.js Server", "Node.js JavaScript runtime", CategoryBackend},
	{"bun", "Bun Server", "Bun JavaScript runtime and bundler", CategoryBackend},
	{"deno", "Deno Server", "Deno secure JavaScript/TypeScript runtime", CategoryBackend},
	{"python", "Python Server", "Python application server", CategoryBackend},
	{"python3", "Python 3 Server", "Python 3 application server", CategoryBackend},
	{"uvicorn", "Uvicorn (ASGI)", "Lightning-fast ASGI server for Python", CategoryBackend},
	{"gunicorn", "Gunicorn (WSGI)", "Python WSGI HTTP server", CategoryBackend},
	{"ruby", "Ruby Server", "Ruby application server", CategoryBackend},
	{"puma", "Puma", "Concurrent web server for Ruby/Rails", CategoryBackend},
	{"go", "Go Server", "Go application server", CategoryBackend},
	{"golink", "golink", "Tailscale private shortlink service", CategoryDevTool},
	{"java", "Java Server", "Java application server", CategoryBackend},
	{"cargo", "Cargo Dev Server", "Rust package manager running a dev server", CategoryDevTool},
	{"php", "PHP Server", "PHP application server", CategoryBackend},
	{"php-fpm", "PHP-FPM", "PHP FastCGI Process Manager", CategoryBackend},

	// Bundlers and dev servers
	{"vite", "Vite Dev Server", "Next-generation frontend build tool", CategoryDevTool},
	{"webpack", "Webpack Dev Server", "JavaScript module bundler dev server", CategoryDevTool},
	{"next", "Next.js Dev Server", "React framework development server", CategoryFrontend},
	{"remix", "Remix Dev Server", "Full-stack React framework", CategoryFrontend},
	{"turbo", "Turborepo", "Monorepo build system", CategoryDevTool},

	// Messaging and system services
	{"rabbitmq-server", "RabbitMQ", "Message broker and queue server", CategoryInfrastructure},
	{"tailscaled", "Tailscale Daemon", "Tailscale VPN daemon", CategoryInfrastructure},
	{"brew", "Homebrew", "macOS package manager", CategoryDevTool},
}

// BuiltinCount reports the size of the builtin catalog.
func BuiltinCount() int {
	return len(builtinCatalog)
}

// SeedBuiltins inserts the builtin catalog into kb, keyed by each command's
// bare fingerprint. Keys already present are left alone, so seeding twice is
// a no-op. It returns the number of entries inserted.
func SeedBuiltins(kb *KnowledgeBase, now time.Time) int {
	if kb.Entries == nil {
		kb.Entries = make(map[string]KnowledgeEntry, len(builtinCatalog))
	}
	inserted := 0
	for _, item := range builtinCatalog {
		fp := NewFingerprint(item.command)
		key := fp.HashKey()
		if _, exists := kb.Entries[key]; exists {
			continue
		}
		kb.Entries[key] = KnowledgeEntry{
			Fingerprint: fp,
			DisplayName: item.displayName,
			Description: item.description,
			Category:    item.category,
			Confidence:  1.0,
			Source:      ProvenanceBuiltin,
			Sightings:   0,
			UpdatedAt:   now.Unix(),
		}
		inserted++
	}
	return inserted
}
