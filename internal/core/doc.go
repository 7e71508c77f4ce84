// Package core provides the schema-reconciliation engine for regulatory workbooks.
//
// The package maps heterogeneously named sheets and headers onto a fixed set
// of canonical tables, validates and coerces them, and commits them through a
// [Sink]. It performs no I/O of its own: sheets come from a [Source] and the
// registry is built by the caller (see package tables).
//
// # Pipeline
//
// [Importer.Run] processes one sheet at a time:
//
//  1. [Classifier.Classify] picks the canonical table from registry keywords,
//     or an ad-hoc table named after the sheet
//  2. [Vocabulary.Rename] resolves raw headers to canonical column names
//  3. [Validator.Validate] produces an advisory [ValidationReport]
//  4. [Coercer.Coerce] applies numeric precision, dates and type narrowing
//  5. [Loader.Load] replaces the table on first write in the run, appends
//     thereafter, and ensures declared and composite indexes
//
// A failure in one sheet never aborts the run.
//
// # Registry
//
// A [Registry] is immutable after construction and passed explicitly to
// every stage, so tests can build reduced registries:
//
//	reg := core.NewRegistry(core.NewVocabulary(map[string]string{
//	    "Costo RRID (COP)": "rrid_cop",
//	}))
//	reg.Register(core.SchemaEntry{
//	    ID:        "rrid_antes_066_24",
//	    Keywords:  []string{"rrid antes"},
//	    Numeric:   []string{"rrid_cop"},
//	    Precision: 0,
//	})
//
// # Error Handling
//
// Sheet failures carry a support code from [MapError]:
//
//   - SRC001-SRC005: source errors (format, missing sheet, empty sheet)
//   - SNK001-SNK007: sink errors (connection, timeouts, locks)
//   - IDX001: index creation (never fatal)
//   - RUN001-RUN005: run errors (busy, cancelled, panics, registry, duplicate source)
package core
