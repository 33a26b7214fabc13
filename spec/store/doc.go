// Package store declares the shared vocabulary of sqlrepo: scalar values,
// ordered records, table schemas, query specifications, the error taxonomy,
// and the narrow statement interface every engine adapter implements.
//
// Engine adapters never leak driver errors. They translate them into one of
// the sentinels declared here, so callers only ever match with errors.Is
// against ErrBusy, ErrConstraintViolation and friends.
package store
