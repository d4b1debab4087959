// Package language normalizes the language codes that arrive from the
// transcriber, the restructurer, configuration and operators.
//
// Inputs may be ISO 639-1, ISO 639-2, BCP 47 tags such as "pt-BR", or English
// words. Everything is reduced to the ISO 639-1 base code used as the key of
// the speech rate table.
package language
