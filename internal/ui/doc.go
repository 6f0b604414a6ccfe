// Package ui implements the terminal job watcher using bubbletea's Elm architecture.
//
// The watcher moves through three views:
//  1. [WatchView] : progress bar and current step, refreshed by polling the job status
//  2. [ResultView] : the playlists created by a completed run
//  3. [ErrorView] : the message recorded by a failed run or a failed status read
//
// The [Model] implements bubbletea's Init/Update/View pattern. Status is read through a [JobSource] every
// poll interval until the job reaches a terminal status, so the watcher also follows a run started by another
// process sharing the same database.
//
// Keyboard navigation uses vim-style bindings (j/k, r, q) with contextual help from charmbracelet/bubbles/help.
package ui
