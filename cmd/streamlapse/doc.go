// Command streamlapse discovers completed livestreams on a channel,
// downloads them, renders sped-up timelapses, and publishes the results.
package main
