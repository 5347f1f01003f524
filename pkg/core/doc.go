// Package core defines the shared language of the leapmap runtime.
//
// This package contains:
//   - Mapping fragments handed over by document parsers (Fragment)
//   - Resolved descriptors (ResultMap, Statement, CacheConfig)
//   - Wire types and statement kinds
//   - Collaborator interfaces (PropertyAccessor, Executor)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
