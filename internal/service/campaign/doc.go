// Package campaign implements campaign lifecycle management.
//
// The service layer owns status transitions (start, pause, resume,
// complete, delete) and the job bookkeeping that goes with them. The
// dispatch passes themselves run elsewhere; this package only decides
// when they should happen. It depends on the Repository and Jobs
// interfaces defined here and should never import from api/.
package campaign
