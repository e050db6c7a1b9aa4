// Package status keeps published status reports up to date.
//
// Aggregate turns raw service records into a Summary. TextRenderer turns a
// Summary into an embed. Scheduler owns one update loop per published report:
// it refreshes the text on every tick, regenerates the chart on a slower
// jittered cadence, and deletes the stored pointer once the platform reports
// that the message is gone. Registry tracks every live loop so the process can
// stop them all during shutdown.
package status
