// Package dial implements the DIAL (DIscovery And Launch) service: a REST
// endpoint rooted at the Application-URL header of the device description,
// used to launch, query and stop applications such as YouTube or Netflix.
package dial
