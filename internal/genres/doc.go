// package genres classifies tracks into normalized genre labels and groups them into playlist buckets.
//
// Classification is multi-label: a track's artist genre tags and the label chosen from its audio
// features are all kept, so one track can end up in several buckets.
package genres
