// Package main hosts the indieseas service entrypoint.
//
// Architecture overview:
//   - Crawl engine: internal/crawler runs a fixed worker pool over a mutex-guarded
//     frontier with per-domain (75 pages) and per-subfolder (10 pages) acceptance
//     caps, a substring denylist, and per-domain request rate limiting. Site rows
//     with is_scraped = false double as the durable resumption queue, so a restart
//     picks up exactly where the previous run stopped.
//   - Fetch pipeline: pages are fetched through the external extraction worker
//     (internal/extract), which returns structured title/description/rawText plus
//     button candidates and outlinks. Candidate images are downloaded directly and
//     classified by internal/buttons: exact 88x31 dimensions, palette color tags,
//     and a true average color.
//   - Indexing: internal/indexer tokenizes and frequency-weights raw text
//     (internal/textproc), embeds title/description/chunks through the embedding
//     worker (internal/vectorize), and replaces each site's vector records
//     wholesale in the pgvector-backed websites_index table.
//   - Search: internal/ranker embeds the query, pulls the 1000 nearest embedding
//     rows by cosine distance, and fuses them per site with type weights
//     (title x2.0, description x1.5, chunks x1.0), dropping sites under the 0.3
//     score floor and returning the top 50.
//   - Configuration & plumbing: Viper populates config from env/files (INDIESEAS_
//     prefix); zap provides structured logging; Prometheus metrics are exported at
//     /metrics; politeness is enforced by internal/robots with an in-memory
//     per-origin ruleset cache and persisted per-site decisions.
//
// Run locally: go run ./cmd/indieseas -config config.yaml -seeds https://example.neocities.org
package main
