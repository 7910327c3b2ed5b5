/*
Package backfill walks a group's topic feed from the newest page backwards
until it reaches the group's watermark.

A Controller handles one group: it requests pages with an end_time cursor,
translates and appends every topic, and stops once a page reaches content
already captured. A Runner drives the Controller for each configured group,
seeds and advances the watermark store, and bounds how many groups run at
the same time.

Only a run that stops cleanly advances the watermark, and it advances it to
the instant the run started.
*/
package backfill
