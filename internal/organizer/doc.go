// Package organizer places classified documents into the output tree.
//
// It sanitizes the category and filename produced by the classifier, creates
// the category directory, picks the lowest free numeric suffix when the name
// is taken, and moves the source without ever replacing an existing file.
// Resolution and move run under one lock so concurrent workers cannot pick the
// same name. When every suffix up to the cap is taken the placement fails with
// services.ErrPlacementAmbiguous and the source stays in the inbox.
package organizer
