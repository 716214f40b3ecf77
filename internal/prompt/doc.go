// Package prompt asks the user to settle security decisions.
//
// Trust conflicts, cross-host redirects, certificate requests and domain
// crossings all go through a Prompter. Interactive runs use Terminal;
// unattended sync uses Fixed, which gives the same configured answer to
// every question and never blocks.
package prompt
