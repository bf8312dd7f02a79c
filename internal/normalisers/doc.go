// Package normalisers provides implementations of the Normaliser interface.
// A normaliser turns a raw catalog payload into the canonical listing form,
// translating source-language text through a dictionary snapshot.
package normalisers
