// Package homepage describes the dashboard's homepage payload: headline cards,
// the day's period-over-period changes, the fixed set of macro signals and
// generation metadata. It is used to smoke-test a running deployment end to
// end through the edge server's proxy.
package homepage
