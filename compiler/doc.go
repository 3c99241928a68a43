// Package compiler turns query templates into executable SQL statements.
//
// A template is literal SQL text interleaved with typed values: record
// types, record instances, lazy references, expressions, nested templates
// and plain parameters. The compiler classifies the statement, resolves
// each value from its position in the surrounding text, derives the joins
// a selected projection needs, and emits dialect-specific SQL together
// with an ordered parameter list.
//
// Compilation is two-phase. Compile produces the SQL text and the
// placeholder order without consuming any runtime values; Bind walks the
// same structure and emits the values in exactly that order. Compiling a
// template twice without binding yields byte-identical SQL, which is what
// makes compiled shapes safe to cache and rebind.
package compiler
