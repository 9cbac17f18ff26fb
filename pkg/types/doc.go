/*
Package types defines the tagged-union value model shared by every other
package in Cyclone.

A Value is one typed element: it carries an element Kind (one of the
fixed-width integer/float kinds or a character string). It does not carry
a Dimensionality or per-dimension extents; a signal's dimensionality and
element count are held on its signal descriptor. Two
operations define round-tripping: Value <-> textual literal (used when a
Default is declared on a signal) and Value <-> byte pattern at a declared
Endianness (used when a broker copies bytes between function memory and
data-source memory).

Numeric conversions between a function's declared Kind and a data source's
declared Kind are only ever performed when lossless; anything else is a
configure-time error, never a silent truncation.
*/
package types
